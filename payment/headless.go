package payment

import "sync"

// HeadlessSurface is an in-process Surface for hosts without a real page:
// server-side rendering, demos and tests. It records label/enabled/error
// mutations and navigations instead of touching a document.
type HeadlessSurface struct {
	mu          sync.Mutex
	control     *HeadlessControl
	errorText   string
	cardError   string
	hasError    bool
	hasCardErr  bool
	anchor      string
	location    string
	navigations []string
}

// NewHeadlessSurface builds a surface with a submit control labelled label.
// Error surfaces are present by default; RemoveErrorSurfaces drops them to
// exercise the log-only degradation.
func NewHeadlessSurface(label, anchor, location string) *HeadlessSurface {
	return &HeadlessSurface{
		control:    &HeadlessControl{label: label, enabled: true},
		hasError:   true,
		hasCardErr: true,
		anchor:     anchor,
		location:   location,
	}
}

// RemoveSubmitControl simulates a page without a submit action.
func (s *HeadlessSurface) RemoveSubmitControl() { s.control = nil }

// RemoveErrorSurfaces simulates a page without error elements.
func (s *HeadlessSurface) RemoveErrorSurfaces() {
	s.mu.Lock()
	s.hasError = false
	s.hasCardErr = false
	s.mu.Unlock()
}

func (s *HeadlessSurface) SubmitControl() SubmitControl {
	if s.control == nil {
		return nil
	}
	return s.control
}

func (s *HeadlessSurface) ErrorSurface() TextSurface {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasError {
		return nil
	}
	return textSetter(func(text string) {
		s.mu.Lock()
		s.errorText = text
		s.mu.Unlock()
	})
}

func (s *HeadlessSurface) CardErrorSurface() TextSurface {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasCardErr {
		return nil
	}
	return textSetter(func(text string) {
		s.mu.Lock()
		s.cardError = text
		s.mu.Unlock()
	})
}

func (s *HeadlessSurface) ContainerAnchor() string { return s.anchor }
func (s *HeadlessSurface) Location() string        { return s.location }

func (s *HeadlessSurface) Navigate(url string) {
	s.mu.Lock()
	s.navigations = append(s.navigations, url)
	s.mu.Unlock()
}

// ErrorText returns the last surfaced error message.
func (s *HeadlessSurface) ErrorText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorText
}

// CardErrorText returns the last surfaced card error message.
func (s *HeadlessSurface) CardErrorText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cardError
}

// Navigations returns every Navigate call so far.
func (s *HeadlessSurface) Navigations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.navigations))
	copy(out, s.navigations)
	return out
}

// HeadlessControl is the surface's submit control.
type HeadlessControl struct {
	mu      sync.Mutex
	label   string
	enabled bool
}

func (c *HeadlessControl) Label() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.label
}

func (c *HeadlessControl) SetLabel(label string) {
	c.mu.Lock()
	c.label = label
	c.mu.Unlock()
}

func (c *HeadlessControl) SetEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
}

// Enabled reports the control's current enabled state.
func (c *HeadlessControl) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

type textSetter func(text string)

func (f textSetter) SetText(text string) { f(text) }
