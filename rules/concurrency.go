//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo detects the Add/Done goroutine pattern and suggests wg.Go().
//
//	wg.Add(1)
//	go func() {
//	    defer wg.Done()
//	    doSomething()
//	}()
//
// becomes
//
//	wg.Go(doSomething)
func WaitGroupGo(m dsl.Matcher) {
	m.Match(`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { $body }) instead of manual Add/Done pattern").
		Suggest("$wg.Go(func() { $body })")

	m.Match(`go func() { defer $wg.Done(); $*_ }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup")).
		Report("use $wg.Go(func() { ... }) instead of go func() { defer $wg.Done(); ... }()")
}

// EngineSleep forbids time.Sleep in the notification engine and its
// adapters. Waits there must end with the caller's context.
func EngineSleep(m dsl.Matcher) {
	m.Match(`time.Sleep($d)`).
		Where(m.File().PkgPath.Matches(`internal/notification`) &&
			!m.File().Name.Matches(`_test\.go$`)).
		Report("do not block in time.Sleep here; wait with a select on ctx.Done() and a timer")
}

// DefaultHTTPClient keeps adapters on the shared httpclient, which carries
// the timeouts and the injectable transport used by tests.
func DefaultHTTPClient(m dsl.Matcher) {
	m.Match(`http.DefaultClient`, `http.Get($*_)`, `http.Post($*_)`).
		Where(m.File().PkgPath.Matches(`internal/notification`)).
		Report("use internal/httpclient instead of the default HTTP client")
}
