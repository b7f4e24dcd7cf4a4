package mock

import (
	"net/http"
	"regexp"
	"time"

	"signflow/internal/crm"
	"signflow/internal/fixtures"
	"signflow/internal/geometry"
)

// Options tunes the fake CRM.
type Options struct {
	WorkspaceID string
	// BaseURL roots the signing URLs the API hands out.
	BaseURL string
	// Token, when set, is the bearer token the API requires.
	Token string

	// EditorContainer and SigningContainer are the rendered page boxes of
	// the template editor and the public signing view.
	EditorContainer  geometry.Box
	SigningContainer geometry.Box
	PageSize         geometry.PageSize
	PageCount        int

	// DisableSelectionMarkup stops the editor from marking the field it just
	// spawned as selected.
	DisableSelectionMarkup bool
	// SmallFieldMaxStep, when positive, is the largest pointer step in
	// pixels a small field survives while dragged. Larger steps drop it.
	SmallFieldMaxStep float64
	// SmallFieldThreshold is the document-unit size below which a field
	// counts as small.
	SmallFieldThreshold float64

	// TemplateApplyDelay is how long the agreement form takes to apply a
	// selected template.
	TemplateApplyDelay time.Duration
	// MaxCodeAttempts wrong codes send the signing flow to its error step.
	MaxCodeAttempts int
	// LinkTTL, when positive, is how long after issue a signing link opens.
	// Older links land on the error step.
	LinkTTL time.Duration

	Clock Clock
	Seed  uint64
}

func (o Options) withDefaults() Options {
	if o.WorkspaceID == "" {
		o.WorkspaceID = "ws_test"
	}
	if o.BaseURL == "" {
		o.BaseURL = "https://crm.test"
	}
	if o.EditorContainer.Empty() {
		o.EditorContainer = geometry.Box{X: 100, Y: 150, Width: 714, Height: 1009}
	}
	if o.SigningContainer.Empty() {
		o.SigningContainer = geometry.Box{X: 60, Y: 110, Width: 892.5, Height: 1263}
	}
	if o.PageSize == (geometry.PageSize{}) {
		o.PageSize = geometry.A4
	}
	if o.PageCount == 0 {
		o.PageCount = fixtures.PageCount
	}
	if o.SmallFieldThreshold == 0 {
		o.SmallFieldThreshold = 30
	}
	if o.TemplateApplyDelay == 0 {
		o.TemplateApplyDelay = 50 * time.Millisecond
	}
	if o.MaxCodeAttempts == 0 {
		o.MaxCodeAttempts = 5
	}
	if o.Clock == nil {
		o.Clock = RealClock{}
	}
	return o
}

// App is one fake CRM deployment: a store, its REST API and the simulated
// UI pages opened against it.
type App struct {
	opts    Options
	store   *Store
	handler http.Handler
}

// NewApp creates a fake CRM with an empty store.
func NewApp(opts Options) *App {
	opts = opts.withDefaults()
	store := NewStore(opts.WorkspaceID, opts.BaseURL, opts.Clock, opts.Seed)
	api := &apiRouter{store: store, token: opts.Token}
	return &App{opts: opts, store: store, handler: api.routes()}
}

// Options returns the effective options.
func (a *App) Options() Options { return a.opts }

// Store returns the shared state.
func (a *App) Store() *Store { return a.store }

// Handler returns the REST API handler.
func (a *App) Handler() http.Handler { return a.handler }

// NewPage opens a blank simulated tab.
func (a *App) NewPage() *Page {
	return &Page{app: a, view: notFoundView{}}
}

func (a *App) editorMapper() *geometry.Mapper {
	m, _ := geometry.NewMapper(a.opts.EditorContainer, a.opts.PageSize)
	return m
}

func (a *App) signingMapper() *geometry.Mapper {
	m, _ := geometry.NewMapper(a.opts.SigningContainer, a.opts.PageSize)
	return m
}

var (
	templateNewRoute  = regexp.MustCompile(`^/ws/([^/]+)/agreement-templates/new$`)
	templateEditRoute = regexp.MustCompile(`^/ws/([^/]+)/agreement-templates/([^/]+)(?:/edit)?$`)
	agreementNewRoute = regexp.MustCompile(`^/ws/([^/]+)/agreements/new$`)
	agreementRoute    = regexp.MustCompile(`^/ws/([^/]+)/agreements/([^/]+)$`)
)

// route picks the view for a path. Unknown paths and other workspaces render
// nothing.
func (a *App) route(p *Page, path string) view {
	ws := a.opts.WorkspaceID
	if m := templateNewRoute.FindStringSubmatch(path); m != nil && m[1] == ws {
		return newEditor(a, p)
	}
	if m := templateEditRoute.FindStringSubmatch(path); m != nil && m[1] == ws {
		t, err := a.store.GetTemplate(m[2])
		if err != nil {
			return notFoundView{}
		}
		return openEditor(a, p, t)
	}
	if m := agreementNewRoute.FindStringSubmatch(path); m != nil && m[1] == ws {
		return newAgreementForm(a, p)
	}
	if m := agreementRoute.FindStringSubmatch(path); m != nil && m[1] == ws {
		ag, err := a.store.GetAgreement(m[2])
		if err != nil {
			return notFoundView{}
		}
		return &agreementDetail{app: a, agreement: ag}
	}
	if su, err := crm.ParseSigningURL(path); err == nil && su.WorkspaceID == ws {
		return newSigningView(a, su)
	}
	return notFoundView{}
}
