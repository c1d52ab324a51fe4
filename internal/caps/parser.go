package caps

import (
	"fmt"

	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/pixel"
)

// Parser caches the descriptor of the last capability string it saw.
//
// A delivery stream usually repeats the same string for every frame, so
// Update only re-parses when the string changes. Parser is not safe for
// concurrent use; the reader calls it from its single delivery goroutine.
type Parser struct {
	table func() (*patternTable, error)

	last string
	seen bool
	desc pixel.Descriptor
	err  error
}

// NewParser returns a parser backed by the process-wide pattern table.
func NewParser() *Parser {
	return &Parser{table: sharedTable}
}

// newParserWithPatterns builds a parser on a private table. Used by tests
// to exercise the compilation failure path.
func newParserWithPatterns(src PatternSources) *Parser {
	return &Parser{table: func() (*patternTable, error) { return compileTable(src) }}
}

// Update parses capability if it differs from the previous call.
//
// changed reports whether a re-parse happened. err is the result of the
// most recent parse, so a repeated bad string keeps reporting the same error.
func (p *Parser) Update(capability string) (changed bool, err error) {
	if p.seen && capability == p.last {
		return false, p.err
	}

	p.last = capability
	p.seen = true
	p.desc = pixel.Descriptor{}
	p.err = nil

	t, terr := p.table()
	if terr != nil {
		p.err = fmt.Errorf("%w: %v", ErrPatternCompilation, terr)
		return true, p.err
	}

	p.desc, p.err = t.parse(capability)
	return true, p.err
}

// Descriptor returns the descriptor derived from the last string.
func (p *Parser) Descriptor() pixel.Descriptor {
	return p.desc
}

// Last returns the last capability string passed to Update.
func (p *Parser) Last() string {
	return p.last
}

// Err returns the error from the last parse, if any.
func (p *Parser) Err() error {
	return p.err
}

// Reset forgets the cached string, forcing the next Update to re-parse.
func (p *Parser) Reset() {
	p.last = ""
	p.seen = false
	p.desc = pixel.Descriptor{}
	p.err = nil
}
