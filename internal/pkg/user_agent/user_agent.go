package user_agent

import (
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Device types stored on sessions and page views.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

// Unmatched is reported when no browser or OS candidate matches.
const Unmatched = "Other"

// Client is the classification of a single user-agent string.
type Client struct {
	DeviceType string
	Browser    string
	OS         string
}

//go:embed database/devices.yml
//go:embed database/browsers.yml
//go:embed database/oss.yml
var databaseFiles embed.FS

// DeviceRule maps a PCRE pattern to a device type.
type DeviceRule struct {
	Type  string `yaml:"type"`
	Regex string `yaml:"regex"`
}

// Candidate is a browser or OS name matched by any of its substring tokens.
type Candidate struct {
	Name   string   `yaml:"name"`
	Tokens []string `yaml:"tokens"`
}

func (c Candidate) matches(userAgent string) bool {
	for _, token := range c.Tokens {
		if strings.Contains(userAgent, token) {
			return true
		}
	}
	return false
}

type compiledRule struct {
	deviceType string
	regex      *pcre.Regexp
}

type Parser struct {
	devices  []compiledRule
	browsers []Candidate
	oss      []Candidate
}

var (
	parser    *Parser
	parserErr error
	once      sync.Once
)

// NewParser loads the embedded rule files. Rule order in the files is the
// match priority.
func NewParser() (*Parser, error) {
	var rules []DeviceRule
	if err := loadYAML("database/devices.yml", &rules); err != nil {
		return nil, err
	}

	p := &Parser{}
	for _, rule := range rules {
		regex, err := pcre.Compile(rule.Regex)
		if err != nil {
			return nil, fmt.Errorf("user_agent: compile %s pattern: %w", rule.Type, err)
		}
		p.devices = append(p.devices, compiledRule{deviceType: rule.Type, regex: regex})
	}

	if err := loadYAML("database/browsers.yml", &p.browsers); err != nil {
		return nil, err
	}
	if err := loadYAML("database/oss.yml", &p.oss); err != nil {
		return nil, err
	}
	return p, nil
}

func loadYAML(name string, out interface{}) error {
	data, err := databaseFiles.ReadFile(name)
	if err != nil {
		return fmt.Errorf("user_agent: read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("user_agent: parse %s: %w", name, err)
	}
	return nil
}

func getParser() *Parser {
	once.Do(func() {
		parser, parserErr = NewParser()
		if parserErr != nil {
			slog.Default().Error("Failed to load user agent rules", slog.Any("error", parserErr))
			parser = &Parser{}
		}
	})
	return parser
}

// DeviceType returns tablet, mobile or desktop.
func (p *Parser) DeviceType(userAgent string) string {
	for _, rule := range p.devices {
		if rule.regex.MatchString(userAgent) {
			return rule.deviceType
		}
	}
	return DeviceDesktop
}

func (p *Parser) Browser(userAgent string) string {
	return firstMatch(p.browsers, userAgent)
}

func (p *Parser) OS(userAgent string) string {
	return firstMatch(p.oss, userAgent)
}

func (p *Parser) Classify(userAgent string) Client {
	return Client{
		DeviceType: p.DeviceType(userAgent),
		Browser:    p.Browser(userAgent),
		OS:         p.OS(userAgent),
	}
}

func firstMatch(candidates []Candidate, userAgent string) string {
	for _, candidate := range candidates {
		if candidate.matches(userAgent) {
			return candidate.Name
		}
	}
	return Unmatched
}

// Classify uses the shared parser built from the embedded rules.
func Classify(userAgent string) Client {
	return getParser().Classify(userAgent)
}

// IsDeviceType reports whether value is one of the three stored device buckets.
func IsDeviceType(value string) bool {
	switch value {
	case DeviceMobile, DeviceTablet, DeviceDesktop:
		return true
	}
	return false
}
