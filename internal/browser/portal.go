package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"factsheet/internal/config"
	"factsheet/internal/logging"
	"factsheet/internal/scrape"
)

// PortalOptions describes the report form.
type PortalOptions struct {
	URL               string
	DialogTitle       string
	ParentLabel       string
	OrganisationLabel string
	MinOptions        int
	DefaultWait       time.Duration
	// OptionWait bounds the wait for a dropdown to populate.
	OptionWait time.Duration
}

// PortalOptionsFrom converts the file configuration.
func PortalOptionsFrom(c *config.Config) PortalOptions {
	return PortalOptions{
		URL:               c.Portal.URL,
		DialogTitle:       c.Portal.DialogTitle,
		ParentLabel:       c.Portal.ParentLabel,
		OrganisationLabel: c.Portal.OrganisationLabel,
		MinOptions:        c.Scrape.MinOptions,
		DefaultWait:       c.GetDefaultWait(),
		OptionWait:        15 * time.Second,
	}
}

// Portal reads fact sheets by filling the portal form in Chrome. It
// implements scrape.Source. Jobs asking for a headed browser get their own
// Chrome instance.
type Portal struct {
	cfg    Config
	opts   PortalOptions
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[bool]*SessionManager
}

// NewPortal creates a portal driver. Browsers start on first use.
func NewPortal(cfg Config, opts PortalOptions, logger *zap.Logger) *Portal {
	if opts.MinOptions <= 0 {
		opts.MinOptions = 2
	}
	if opts.DefaultWait <= 0 {
		opts.DefaultWait = 25 * time.Second
	}
	if opts.OptionWait <= 0 {
		opts.OptionWait = 15 * time.Second
	}
	return &Portal{
		cfg:      cfg,
		opts:     opts,
		logger:   logging.For(logger, logging.CategoryBrowser),
		sessions: make(map[bool]*SessionManager),
	}
}

func (p *Portal) session(headless bool) *SessionManager {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sm, ok := p.sessions[headless]; ok {
		return sm
	}
	cfg := p.cfg
	cfg.Headless = headless
	sm := NewSessionManager(cfg, p.logger)
	p.sessions[headless] = sm
	return sm
}

// Shutdown closes every browser the portal started.
func (p *Portal) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for headless, sm := range p.sessions {
		if err := sm.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		delete(p.sessions, headless)
	}
	return errors.Join(errs...)
}

// FetchReport fills the form for job, opens the report and returns its text.
func (p *Portal) FetchReport(ctx context.Context, job scrape.Job) (string, error) {
	page, closePage, err := p.session(job.HeadlessOr(p.cfg.Headless)).NewPage(ctx)
	if err != nil {
		return "", err
	}
	defer closePage()

	r := &reportRun{
		page: page,
		opts: p.opts,
		nav:  p.cfg.GetNavigationTimeout(),
		wait: job.Wait(p.opts.DefaultWait),
		job:  job,
		log:  p.logger.With(zap.String("organisation", job.Organisation)),
	}
	if err := r.fillForm(); err != nil {
		return "", err
	}
	return r.readReport()
}

// reportRun is one pass through the form on a dedicated page.
type reportRun struct {
	page *rod.Page
	opts PortalOptions
	nav  time.Duration
	wait time.Duration
	job  scrape.Job
	log  *zap.Logger
}

func (r *reportRun) fillForm() error {
	if err := r.page.Timeout(r.nav).Navigate(r.opts.URL); err != nil {
		return classify("open portal", err)
	}
	if _, err := r.page.Timeout(r.nav).Element("select"); err != nil {
		return classify("wait for form dropdowns", err)
	}

	parent, err := r.findSelect(r.opts.ParentLabel, 0)
	if err != nil {
		return err
	}
	if err := r.waitForOptions(parent); err != nil {
		return err
	}
	if err := selectByText(parent, r.job.Parent); err != nil {
		return err
	}
	r.log.Debug("parent selected", zap.String("parent", r.job.Parent))

	org, err := r.findSelect(r.opts.OrganisationLabel, 1)
	if err != nil {
		return err
	}
	if err := r.waitForOptions(org); err != nil {
		return err
	}
	// The organisation list reloads after the parent changes.
	err = org.Timeout(r.nav).Wait(rod.Eval(
		`(want) => Array.from(this.options).some(o => o.text.trim() === want)`, r.job.Organisation))
	if err != nil {
		return classify(fmt.Sprintf("wait for organisation option %q", r.job.Organisation), err)
	}
	if err := selectByText(org, r.job.Organisation); err != nil {
		return err
	}

	if r.job.HasLastField() {
		input, err := r.findTextInput()
		if err != nil {
			return err
		}
		_ = input.SelectAllText()
		if err := input.Input(r.job.LastField); err != nil {
			return classify("type into text field", err)
		}
	}

	return r.clickViewReport()
}

func (r *reportRun) findSelect(label string, fallbackIndex int) (*rod.Element, error) {
	for _, xp := range selectXPaths(label) {
		has, el, err := r.page.HasX(xp)
		if err != nil {
			return nil, classify("find select for "+label, err)
		}
		if has {
			return el, nil
		}
	}

	selects, err := r.page.Elements("select")
	if err != nil {
		return nil, classify("list selects", err)
	}
	if len(selects) > fallbackIndex {
		r.log.Debug("select label not found, using position", zap.String("label", label), zap.Int("index", fallbackIndex))
		return selects[fallbackIndex], nil
	}
	return nil, fmt.Errorf("%w: could not find select for label %q", scrape.ErrElementNotFound, label)
}

func (r *reportRun) waitForOptions(sel *rod.Element) error {
	err := sel.Timeout(r.opts.OptionWait).Wait(rod.Eval(`(n) => this.options.length >= n`, r.opts.MinOptions))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: dropdown didn't populate with enough options in time", scrape.ErrTimeout)
		}
		return classify("wait for dropdown options", err)
	}
	return nil
}

func selectByText(sel *rod.Element, text string) error {
	pattern := `^\s*` + regexp.QuoteMeta(text) + `\s*$`
	if err := sel.Select([]string{pattern}, true, rod.SelectorTypeRegex); err != nil {
		return fmt.Errorf("%w: option %q: %v", scrape.ErrElementNotFound, text, err)
	}
	return nil
}

func (r *reportRun) findTextInput() (*rod.Element, error) {
	selects, err := r.page.Elements("select")
	if err != nil {
		return nil, classify("list selects", err)
	}
	if len(selects) >= 2 {
		inputs, err := selects[1].ElementsX(textInputAfterSelectXPath)
		if err == nil && len(inputs) > 0 {
			return inputs.First(), nil
		}
	}

	inputs, err := r.page.ElementsX(enabledTextInputXPath)
	if err != nil {
		return nil, classify("list text inputs", err)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no visible text input for last field", scrape.ErrElementNotFound)
	}
	return inputs.First(), nil
}

func (r *reportRun) clickViewReport() error {
	candidates, err := r.page.ElementsX(viewReportXPath)
	if err != nil {
		return classify("find View Report", err)
	}
	if len(candidates) == 0 {
		if candidates, err = r.page.ElementsX(anyButtonXPath); err != nil {
			return classify("find buttons", err)
		}
	}

	for _, c := range candidates {
		if !interactable(c) {
			continue
		}
		if err := c.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return classify("click View Report", err)
		}
		return nil
	}
	return fmt.Errorf("%w: couldn't find/click the 'View Report' button", scrape.ErrElementNotFound)
}

func interactable(el *rod.Element) bool {
	visible, err := el.Visible()
	if err != nil || !visible {
		return false
	}
	disabled, err := el.Property("disabled")
	if err != nil {
		return false
	}
	return !disabled.Bool()
}

func (r *reportRun) readReport() (string, error) {
	dialog, err := r.page.Timeout(r.wait).ElementX(dialogXPath(r.opts.DialogTitle))
	if err != nil {
		return "", classify("wait for report dialog", err)
	}
	if err := dialog.WaitVisible(); err != nil {
		return "", classify("wait for report dialog to show", err)
	}
	dialog = dialog.CancelTimeout()

	root := r.page
	if frames, err := dialog.ElementsX(".//iframe"); err == nil && len(frames) > 0 {
		frame, err := frames.First().Frame()
		if err != nil {
			return "", classify("enter report frame", err)
		}
		root = frame
	}

	content := r.findContent(root)
	if content == nil {
		content = dialog
	}
	text, err := content.Text()
	if err != nil {
		return "", classify("read report text", err)
	}
	r.log.Debug("report read", zap.Int("chars", len(text)))
	return text, nil
}

// findContent waits for the preferred report container, then settles for
// the first visible fallback. A present but hidden container is kept only
// when nothing better shows up.
func (r *reportRun) findContent(root *rod.Page) *rod.Element {
	var content *rod.Element
	if el, err := root.Timeout(r.wait).ElementX(contentXPaths[0]); err == nil {
		content = el.CancelTimeout()
		if visible, _ := content.Visible(); visible {
			return content
		}
	}
	for _, xp := range contentXPaths[1:] {
		has, el, err := root.HasX(xp)
		if err != nil || !has {
			continue
		}
		content = el
		if visible, _ := el.Visible(); visible {
			return el
		}
	}
	return content
}

// classify maps rod failures onto the scrape error taxonomy.
func classify(what string, err error) error {
	var notFound *rod.ElementNotFoundError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s", scrape.ErrTimeout, what)
	case errors.As(err, &notFound):
		return fmt.Errorf("%w: %s", scrape.ErrElementNotFound, what)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
