package domain

// Observable 维护显式的订阅回调列表，参数变化时逐个通知
// 非并发安全，由持有者负责同步
type Observable struct {
	observers map[int]func()
	nextID    int
}

// Subscribe 注册回调，返回取消订阅函数
func (o *Observable) Subscribe(fn func()) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	if o.observers == nil {
		o.observers = make(map[int]func())
	}
	id := o.nextID
	o.nextID++
	o.observers[id] = fn
	return func() { delete(o.observers, id) }
}

// NotifyObservers 按注册顺序通知所有订阅者
func (o *Observable) NotifyObservers() {
	for id := 0; id < o.nextID; id++ {
		if fn, ok := o.observers[id]; ok {
			fn()
		}
	}
}

// ObserverCount 当前订阅者数量
func (o *Observable) ObserverCount() int {
	return len(o.observers)
}

// LazyObject 惰性计算缓存：calculated 为脏标记的反面。
// Invalidate 清除标记并通知下游，Calculate 仅在标记无效时执行计算。
type LazyObject struct {
	Observable
	calculated   bool
	calculations int
}

// Invalidate 使缓存失效并通知订阅者
func (l *LazyObject) Invalidate() {
	l.calculated = false
	l.NotifyObservers()
}

// IsCalculated 缓存是否有效
func (l *LazyObject) IsCalculated() bool {
	return l.calculated
}

// Calculations 实际执行计算的次数
func (l *LazyObject) Calculations() int {
	return l.calculations
}

// Calculate 缓存无效时执行 fn；fn 失败时缓存保持无效
func (l *LazyObject) Calculate(fn func() error) error {
	if l.calculated {
		return nil
	}
	l.calculations++
	if err := fn(); err != nil {
		return err
	}
	l.calculated = true
	return nil
}
