package ftpclient

// Progress observes a single transfer. Update is called after every chunk
// with the bytes moved so far and the expected total. When the server
// does not report a size, total is a placeholder of 1 MiB and done may
// exceed it.
type Progress interface {
	Update(done, total int64)
}

// ItemObserver may be implemented by the Progress passed to a recursive
// operation, or passed to Manager.Batch, to hear about each finished item.
// err is nil on success.
type ItemObserver interface {
	ItemDone(path string, err error)
}

// ProgressFunc adapts a function to Progress.
type ProgressFunc func(done, total int64)

func (f ProgressFunc) Update(done, total int64) { f(done, total) }

// TransferProgress is one progress sample.
type TransferProgress struct {
	Done  int64
	Total int64
}

// ProgressChan adapts a channel to Progress. Sends never block; samples are
// dropped while the channel is full.
type ProgressChan chan<- TransferProgress

func (c ProgressChan) Update(done, total int64) {
	select {
	case c <- TransferProgress{Done: done, Total: total}:
	default:
	}
}

func notifyItem(p Progress, path string, err error) {
	if obs, ok := p.(ItemObserver); ok {
		obs.ItemDone(path, err)
	}
}

func update(p Progress, done, total int64) {
	if p != nil {
		p.Update(done, total)
	}
}
