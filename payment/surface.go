package payment

// Surface abstracts the host page so the state machine never touches a real
// document. The submit control is required for an attempt; the text surfaces
// are optional and their absence degrades to log-only.
type Surface interface {
	// SubmitControl returns nil when the host page has no submit control,
	// which aborts the attempt.
	SubmitControl() SubmitControl
	// ErrorSurface returns nil when no error-message element exists.
	ErrorSurface() TextSurface
	// CardErrorSurface returns nil when no card-error element exists.
	CardErrorSurface() TextSurface
	// ContainerAnchor is the mount point handed to the provider UI.
	ContainerAnchor() string
	// Location is the current page URL, used as the confirmation return
	// target.
	Location() string
	// Navigate sends the user to url after a confirmed payment.
	Navigate(url string)
}

// SubmitControl is the host page's checkout submit action.
type SubmitControl interface {
	Label() string
	SetLabel(label string)
	SetEnabled(enabled bool)
}

// TextSurface is a text-replaceable page element.
type TextSurface interface {
	SetText(text string)
}
