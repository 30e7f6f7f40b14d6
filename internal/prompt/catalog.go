// Package prompt holds the instruction templates and fixed vocabulary used to
// talk to users and to the completion provider.
package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"metasolver/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

// Catalog is the parsed prompt catalog.
type Catalog struct {
	System            string   `yaml:"system"`
	User              string   `yaml:"user"`
	Gratitude         []string `yaml:"gratitude"`
	TrustedDomains    []string `yaml:"trustedDomains"`
	GratitudeReply    string   `yaml:"gratitudeReply"`
	ErrorReply        string   `yaml:"errorReply"`
	AckReaction       string   `yaml:"ackReaction"`
	ValidatedReaction string   `yaml:"validatedReaction"`

	system *template.Template
	user   *template.Template
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return parse(defaultCatalog, "default.yaml")
}

// Load returns the embedded catalog with the fields present in the YAML file
// at path layered on top. An empty path yields the default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	override, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt catalog: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(defaultCatalog, &c); err != nil {
		return nil, fmt.Errorf("parse default catalog: %w", err)
	}
	// Unmarshalling into the populated struct keeps fields the override omits.
	if err := yaml.Unmarshal(override, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := c.compile(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

func parse(data []byte, name string) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	if err := c.compile(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &c, nil
}

func (c *Catalog) compile() error {
	if strings.TrimSpace(c.User) == "" {
		return fmt.Errorf("user template is empty")
	}
	if c.GratitudeReply == "" {
		return fmt.Errorf("gratitudeReply is empty")
	}
	if !strings.Contains(c.ErrorReply, "%v") {
		return fmt.Errorf("errorReply must contain %%v")
	}
	var err error
	if c.system, err = template.New("system").Parse(c.System); err != nil {
		return fmt.Errorf("system template: %w", err)
	}
	if c.user, err = template.New("user").Parse(c.User); err != nil {
		return fmt.Errorf("user template: %w", err)
	}
	return nil
}

// Messages renders the system and user turns for a question.
func (c *Catalog) Messages(text string) ([]domain.Message, error) {
	var sys, usr strings.Builder
	if err := c.system.Execute(&sys, c); err != nil {
		return nil, fmt.Errorf("render system prompt: %w", err)
	}
	if err := c.user.Execute(&usr, struct{ Text string }{text}); err != nil {
		return nil, fmt.Errorf("render user prompt: %w", err)
	}

	msgs := make([]domain.Message, 0, 2)
	if s := strings.TrimSpace(sys.String()); s != "" {
		msgs = append(msgs, domain.Message{Role: "system", Content: s})
	}
	msgs = append(msgs, domain.Message{Role: "user", Content: strings.TrimSpace(usr.String())})
	return msgs, nil
}

// ErrorNotice formats the in-thread apology for a failed completion.
func (c *Catalog) ErrorNotice(err error) string {
	return fmt.Sprintf(c.ErrorReply, err)
}
