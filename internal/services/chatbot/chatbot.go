package chatbot

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed replies.yaml
var defaultRules []byte

type Rule struct {
	Keywords []string `yaml:"keywords"`
	Reply    string   `yaml:"reply"`
}

type ruleSet struct {
	Fallback string `yaml:"fallback"`
	Rules    []Rule `yaml:"rules"`
}

// Bot answers with the reply of the first rule whose keyword appears in the
// message as whole words.
type Bot struct {
	rules    []rule
	fallback string
	delay    time.Duration
}

// rule is a Rule with each keyword split into lowercase words.
type rule struct {
	phrases [][]string
	reply   string
}

// New loads rules from path, or the embedded defaults when path is empty.
func New(path string, delay time.Duration) (*Bot, error) {
	raw := defaultRules
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read chatbot rules: %w", err)
		}
		raw = b
	}
	return Parse(raw, delay)
}

func Parse(raw []byte, delay time.Duration) (*Bot, error) {
	var rs ruleSet
	if err := yaml.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("parse chatbot rules: %w", err)
	}
	if rs.Fallback == "" {
		return nil, fmt.Errorf("chatbot rules: fallback reply is required")
	}
	rules := make([]rule, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		compiled := rule{reply: r.Reply}
		for _, k := range r.Keywords {
			if words := tokenize(k); len(words) > 0 {
				compiled.phrases = append(compiled.phrases, words)
			}
		}
		rules = append(rules, compiled)
	}
	return &Bot{rules: rules, fallback: rs.Fallback, delay: delay}, nil
}

// tokenize lowercases s and splits it on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsPhrase reports whether phrase occurs as consecutive words of msg.
// A trailing "s" on a message word is tolerated, so "gigs" matches "gig".
func containsPhrase(msg, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(msg); i++ {
		hit := true
		for j, w := range phrase {
			if m := msg[i+j]; m != w && m != w+"s" {
				hit = false
				break
			}
		}
		if hit {
			return true
		}
	}
	return false
}

// Match returns the canned reply for message without waiting.
func (b *Bot) Match(message string) (reply string, matched bool) {
	words := tokenize(message)
	for _, r := range b.rules {
		for _, p := range r.phrases {
			if containsPhrase(words, p) {
				return r.reply, true
			}
		}
	}
	return b.fallback, false
}

// Reply waits the fixed typing delay, then returns the canned reply.
func (b *Bot) Reply(ctx context.Context, message string) (string, error) {
	if b.delay > 0 {
		t := time.NewTimer(b.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
	reply, _ := b.Match(message)
	return reply, nil
}
