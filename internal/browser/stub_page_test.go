package browser

import (
	"context"
	"sync"
	"time"
)

// stubPage is a scripted Page used to exercise the driver, filler and
// navigator without a live browser.
type stubPage struct {
	mu sync.Mutex

	evalFn          func(js string, out any) error
	clickFn         func(sel string) error
	sendKeysFn      func(sel, keys string) error
	pressKeyFn      func(sel, key string) error
	keysToFocusedFn func(keys string) error
	waitVisibleFn   func(sel string) error
	contentFn       func(call int) (string, error)
	locationFn      func(call int) (string, error)
	cookies         []Cookie

	contentCalls  int
	locationCalls int
	freshTabCalls int
	reloadCalls   int
	navigations   []string
}

func (s *stubPage) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigations = append(s.navigations, url)
	return nil
}

func (s *stubPage) Reload(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadCalls++
	return nil
}

func (s *stubPage) FreshTab(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freshTabCalls++
	s.navigations = append(s.navigations, url)
	return nil
}

func (s *stubPage) Location(context.Context) (string, error) {
	s.mu.Lock()
	s.locationCalls++
	call := s.locationCalls
	fn := s.locationFn
	s.mu.Unlock()
	if fn == nil {
		return "about:blank", nil
	}
	return fn(call)
}

func (s *stubPage) Content(context.Context) (string, error) {
	s.mu.Lock()
	s.contentCalls++
	call := s.contentCalls
	fn := s.contentFn
	s.mu.Unlock()
	if fn == nil {
		return "<html></html>", nil
	}
	return fn(call)
}

func (s *stubPage) WaitVisible(_ context.Context, sel string, _ time.Duration) error {
	if s.waitVisibleFn == nil {
		return nil
	}
	return s.waitVisibleFn(sel)
}

func (s *stubPage) Click(_ context.Context, sel string) error {
	if s.clickFn == nil {
		return nil
	}
	return s.clickFn(sel)
}

func (s *stubPage) SendKeys(_ context.Context, sel, keys string) error {
	if s.sendKeysFn == nil {
		return nil
	}
	return s.sendKeysFn(sel, keys)
}

func (s *stubPage) PressKey(_ context.Context, sel, key string) error {
	if s.pressKeyFn == nil {
		return nil
	}
	return s.pressKeyFn(sel, key)
}

func (s *stubPage) KeysToFocused(_ context.Context, keys string) error {
	if s.keysToFocusedFn == nil {
		return nil
	}
	return s.keysToFocusedFn(keys)
}

func (s *stubPage) Eval(_ context.Context, js string, out any) error {
	if s.evalFn == nil {
		return nil
	}
	return s.evalFn(js, out)
}

func (s *stubPage) Cookies(context.Context) ([]Cookie, error) {
	return s.cookies, nil
}

// setOut writes a stubbed evaluation result into the caller's out pointer.
func setOut(out, v any) {
	switch p := out.(type) {
	case *string:
		*p = v.(string)
	case *int:
		*p = v.(int)
	case *bool:
		*p = v.(bool)
	}
}
