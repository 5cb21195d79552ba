// Package searcher is the embeddable API for hybrid search over a folder
// of text documents.
//
// A Searcher owns the on-disk index of one corpus directory. It loads the
// same layered configuration as the hybridrag CLI, so a folder indexed by
// one can be searched by the other:
//
//	s, err := searcher.Open(ctx, "./docs", searcher.WithAlpha(0.5))
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	if s.Empty() {
//	    if _, err := s.Index(ctx); err != nil {
//	        return err
//	    }
//	}
//	results, err := s.Search(ctx, "how do diesel engines ignite fuel", 5)
//
// All methods are safe for concurrent use. Search keeps answering from the
// previous index while Index runs.
package searcher
