package actor

// Steps folds a sequence of inputs through a reducer and returns the final
// state plus the effects of every step, concatenated in order.
func Steps[S any](state S, reducer ReducerFunc[S], inputs ...Input) (S, []Effect) {
	var all []Effect
	for _, in := range inputs {
		var effects []Effect
		state, effects = reducer(state, in)
		all = append(all, effects...)
	}
	return state, all
}
