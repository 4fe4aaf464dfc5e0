package disk

import "sync"

// Request is a single asynchronous page read or write. Callers never
// touch the Manager directly; they build a Request, call Schedule, and
// wait on RespCh.
type Request struct {
	PageID int64
	Data   []byte
	Write  bool
	Delete bool
	RespCh chan Response
}

// Response is the result of a completed Request.
type Response struct {
	Success bool
	Data    []byte
	Err     error
}

// NewReadRequest builds a read Request for pageID with a fresh response
// channel.
func NewReadRequest(pageID int64) Request {
	return Request{PageID: pageID, Write: false, RespCh: make(chan Response, 1)}
}

// NewWriteRequest builds a write Request for pageID with a fresh
// response channel.
func NewWriteRequest(pageID int64, data []byte) Request {
	return Request{PageID: pageID, Data: data, Write: true, RespCh: make(chan Response, 1)}
}

// NewDeleteRequest builds a request that deallocates pageID's on-disk
// offset.
func NewDeleteRequest(pageID int64) Request {
	return Request{PageID: pageID, Delete: true, RespCh: make(chan Response, 1)}
}

// Scheduler is the single background worker named in spec §2/§6: it
// drains a request queue (a channel buffered to 256 requests) and
// fulfills each request's promise by calling into the Manager.
type Scheduler struct {
	reqCh   chan Request
	manager *Manager
	closed  chan struct{}
	once    sync.Once
}

// NewScheduler starts the worker goroutine and returns a handle to it.
func NewScheduler(manager *Manager) *Scheduler {
	ds := &Scheduler{
		reqCh:   make(chan Request, 256),
		manager: manager,
		closed:  make(chan struct{}),
	}
	go ds.run()
	return ds
}

// Schedule enqueues req and returns without waiting for it to run; it
// blocks only while 256 requests are already queued. The result
// arrives on req.RespCh.
func (ds *Scheduler) Schedule(req Request) <-chan Response {
	ds.reqCh <- req
	return req.RespCh
}

// Close stops the worker. Pending requests already enqueued are still
// drained before the worker exits.
func (ds *Scheduler) Close() {
	ds.once.Do(func() {
		close(ds.reqCh)
	})
	<-ds.closed
}

func (ds *Scheduler) run() {
	defer close(ds.closed)
	for req := range ds.reqCh {
		switch {
		case req.Delete:
			ds.manager.DeletePage(req.PageID)
			req.RespCh <- Response{Success: true}
		case req.Write:
			err := ds.manager.WritePage(req.PageID, req.Data)
			req.RespCh <- Response{Success: err == nil, Err: err}
		default:
			data, err := ds.manager.ReadPage(req.PageID)
			req.RespCh <- Response{Success: err == nil, Data: data, Err: err}
		}
	}
}
