package timekeeping

import "context"

// Element is a snapshot of one DOM node matched by an XPath expression.
// Index is the node's position within the XPath result, used to address it again.
type Element struct {
	XPath   string
	Index   int
	Tag     string
	Text    string
	Visible bool
	Enabled bool
	Checked bool
}

// Page is the subset of browser control the bot needs. Implementations must not
// mutate the document from Query.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	// Fill replaces the value of the input with the given id.
	Fill(ctx context.Context, id, value string) error
	Query(ctx context.Context, xpath string) ([]Element, error)
	Click(ctx context.Context, el Element) error
	Screenshot(ctx context.Context) ([]byte, error)
	// Close terminates the underlying browser. It must be safe to call more than once.
	Close() error
}

// Launcher starts a fresh browser and returns its single page.
type Launcher interface {
	Launch(ctx context.Context) (Page, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context) (Page, error)

func (f LauncherFunc) Launch(ctx context.Context) (Page, error) { return f(ctx) }

// Credentials identify the timekeeping account.
type Credentials struct {
	CompanyID string
	Username  string
	Password  string
}

// Missing returns the names of empty fields.
func (c Credentials) Missing() []string {
	var out []string
	if c.CompanyID == "" {
		out = append(out, "company id")
	}
	if c.Username == "" {
		out = append(out, "username")
	}
	if c.Password == "" {
		out = append(out, "password")
	}
	return out
}

// Validate returns an AuthError listing empty fields, or nil.
func (c Credentials) Validate() error {
	if m := c.Missing(); len(m) > 0 {
		return &AuthError{Kind: AuthMissingCredentials, Missing: m}
	}
	return nil
}
