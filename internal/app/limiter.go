package app

// Тяжелые операции (LLM-генерация, бэкап, рендер графика) ограничены
// двумя одновременными исполнителями.
var heavyLimiter = make(chan struct{}, 2)

func runHeavy(name string, fn func()) {
	safeGo(name, func() {
		heavyLimiter <- struct{}{}
		defer func() { <-heavyLimiter }()
		fn()
	})
}
