package entity

// Default browser fingerprint values used when the client omits a field.
// The gateway requires a complete browser snapshot for 3DS2 risk scoring.
const (
	DefaultLanguage       = "en-US"
	DefaultScreenWidth    = 1366
	DefaultScreenHeight   = 768
	DefaultTimezoneOffset = -180
	DefaultColorDepth     = 24
	DefaultUserAgent      = "Mozilla/5.0"
)

// BrowserContext is a snapshot of the payer's browser environment supplied to
// the authenticate-payer step. It is not persisted; it does not outlive the
// authentication request.
type BrowserContext struct {
	Language       string `json:"language"`
	TimezoneOffset *int   `json:"timezoneOffset"`
	ScreenWidth    int    `json:"screenWidth"`
	ScreenHeight   int    `json:"screenHeight"`
	ColorDepth     int    `json:"colorDepth"`
	JavaEnabled    bool   `json:"javaEnabled"`
	AcceptHeaders  string `json:"acceptHeaders"`
	UserAgent      string `json:"userAgent"`
	IPAddress      string `json:"ipAddress"`
}

// WithDefaults returns a copy with every absent field replaced by its fixed
// fallback. Safe to call on a nil receiver.
func (b *BrowserContext) WithDefaults() BrowserContext {
	out := BrowserContext{}
	if b != nil {
		out = *b
	}
	if out.Language == "" {
		out.Language = DefaultLanguage
	}
	if out.TimezoneOffset == nil {
		tz := DefaultTimezoneOffset
		out.TimezoneOffset = &tz
	}
	if out.ScreenWidth == 0 {
		out.ScreenWidth = DefaultScreenWidth
	}
	if out.ScreenHeight == 0 {
		out.ScreenHeight = DefaultScreenHeight
	}
	if out.ColorDepth == 0 {
		out.ColorDepth = DefaultColorDepth
	}
	if out.AcceptHeaders == "" {
		out.AcceptHeaders = "application/json"
	}
	if out.UserAgent == "" {
		out.UserAgent = DefaultUserAgent
	}
	return out
}
