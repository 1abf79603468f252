package crawl

// Walk visits every item not yet marked done, applies action to it, and
// persists the whole slice after each successful action. Persisting after
// every step rather than at the end means a crash loses at most the item
// in flight; rerunning resumes from the first not-done item.
//
// When every item is already done the persist function is never called, so
// a second run over finished work leaves the file untouched.
func Walk[T any](
	items []T,
	done func(T) bool,
	action func(i int, item *T) error,
	persist func([]T) error,
	onErr func(error) error,
) (visited int, err error) {
	for i := range items {
		if done(items[i]) {
			continue
		}
		if err := action(i, &items[i]); err != nil {
			if onErr == nil {
				return visited, err
			}
			if err = onErr(err); err != nil {
				return visited, err
			}
			continue
		}
		visited++
		if err := persist(items); err != nil {
			return visited, err
		}
	}
	return visited, nil
}
