package proxy

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// RewriteRule replaces every match of Match in the forwarded path with Replace
type RewriteRule struct {
	Match   string `yaml:"match"`
	Replace string `yaml:"replace"`

	re *regexp.Regexp
}

// Target is one externally hosted game service. Targets are static and
// loaded once at startup.
type Target struct {
	Name        string        `yaml:"name"`
	Prefix      string        `yaml:"prefix"`
	Upstream    string        `yaml:"upstream"`
	HealthPath  string        `yaml:"health_path"`
	StripPrefix bool          `yaml:"strip_prefix"`
	Rewrites    []RewriteRule `yaml:"rewrites"`

	upstream *url.URL
}

type targetsFile struct {
	Targets []Target `yaml:"targets"`
}

// ParseTargets decodes and validates a YAML routing table:
//
//	targets:
//	  - name: trivia
//	    prefix: /trivia
//	    upstream: http://trivia:3000
//	    health_path: /health
//	    strip_prefix: true
//	    rewrites:
//	      - match: ^/api/v1/
//	        replace: /api/
func ParseTargets(data []byte) ([]Target, error) {
	var f targetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding proxy targets: %w", err)
	}
	seenName := map[string]bool{}
	seenPrefix := map[string]bool{}
	for i := range f.Targets {
		t := &f.Targets[i]
		if err := t.compile(); err != nil {
			return nil, err
		}
		if seenName[t.Name] {
			return nil, fmt.Errorf("proxy target %q declared twice", t.Name)
		}
		if seenPrefix[t.Prefix] {
			return nil, fmt.Errorf("proxy prefix %q used by more than one target", t.Prefix)
		}
		seenName[t.Name], seenPrefix[t.Prefix] = true, true
	}
	return f.Targets, nil
}

func (t *Target) compile() error {
	if t.Name == "" {
		return fmt.Errorf("proxy target without a name")
	}
	if !strings.HasPrefix(t.Prefix, "/") || t.Prefix == "/" {
		return fmt.Errorf("proxy target %s: prefix must start with / and not be the root", t.Name)
	}
	t.Prefix = strings.TrimSuffix(t.Prefix, "/")

	u, err := url.Parse(t.Upstream)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("proxy target %s: invalid upstream %q", t.Name, t.Upstream)
	}
	t.upstream = u

	if t.HealthPath == "" {
		t.HealthPath = "/health"
	}
	if !strings.HasPrefix(t.HealthPath, "/") {
		t.HealthPath = "/" + t.HealthPath
	}

	for i := range t.Rewrites {
		re, err := regexp.Compile(t.Rewrites[i].Match)
		if err != nil {
			return fmt.Errorf("proxy target %s: rewrite %d: %w", t.Name, i, err)
		}
		t.Rewrites[i].re = re
	}
	return nil
}

// rewritePath maps an inbound request path to the upstream path
func (t *Target) rewritePath(path string) string {
	if t.StripPrefix {
		path = strings.TrimPrefix(path, t.Prefix)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	for _, r := range t.Rewrites {
		path = r.re.ReplaceAllString(path, r.Replace)
	}
	return path
}

func (t *Target) healthURL() string {
	u := *t.upstream
	u.Path = strings.TrimSuffix(u.Path, "/") + t.HealthPath
	u.RawQuery = ""
	return u.String()
}
