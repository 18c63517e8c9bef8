package detect

import (
	"context"
	"encoding/json"
	"net"
	"net/url"
	"strings"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/toolargs"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/viewset"
)

var dangerousSchemes = map[string]bool{
	"file": true, "gopher": true, "dict": true, "ldap": true, "ldaps": true,
	"data": true, "netdoc": true,
}

var suspiciousHostnames = map[string]bool{
	"localhost": true, "metadata.google.internal": true, "169.254.169.254": true,
}

// ToolArgsSSRFScanner deep-walks decoded tool-call args looking for
// dangerous URL schemes and references to private, loopback, link-local, or
// cloud-metadata network addresses.
type ToolArgsSSRFScanner struct{}

func NewToolArgsSSRFScanner() *ToolArgsSSRFScanner { return &ToolArgsSSRFScanner{} }

func (s *ToolArgsSSRFScanner) Name() string            { return "tool_args_ssrf" }
func (s *ToolArgsSSRFScanner) Kind() model.FindingKind { return model.KindDetect }

func (s *ToolArgsSSRFScanner) Run(_ context.Context, in model.NormalizedInput) (model.NormalizedInput, []model.Finding, error) {
	out := in.Clone()
	if out.Canonical.ToolCallsJSON == "" {
		return out, nil, nil
	}

	var calls []struct {
		ToolName string      `json:"toolName"`
		Args     interface{} `json:"args"`
	}
	if err := json.Unmarshal([]byte(out.Canonical.ToolCallsJSON), &calls); err != nil {
		return out, nil, nil
	}

	var findings []model.Finding
	for i, call := range calls {
		toolargs.Visit(call.Args, func(path []string, leaf string) {
			scheme, isURLish := extractScheme(leaf)
			if !isURLish {
				return
			}

			argPath := strings.Join(path, ".")
			key := "toolCall:" + chunkKey(i) + ":" + argPath

			if dangerousSchemes[scheme] {
				findings = append(findings, s.finding(in.RequestID, key, call.ToolName, argPath, leaf, "",
					"dangerous URL scheme "+scheme+" in tool argument"))
				return
			}

			u, err := url.Parse(leaf)
			if err != nil || u.Hostname() == "" {
				return
			}
			host := u.Hostname()

			if reason := suspiciousAddressReason(host); reason != "" {
				findings = append(findings, s.finding(in.RequestID, key, call.ToolName, argPath, leaf, host, reason))
			}
		})
	}

	return out, findings, nil
}

func (s *ToolArgsSSRFScanner) finding(requestID, key, toolName, argPath, rawURL, host, reason string) model.Finding {
	target := model.FindingTarget{Field: model.FieldPrompt, View: viewset.Raw}
	return model.NewFinding(
		model.KindDetect, s.Name(), requestID, key, 0.8, model.RiskHigh,
		reason, target,
		map[string]interface{}{
			"toolName": toolName,
			"argPath":  argPath,
			"url":      rawURL,
			"host":     host,
			"reason":   reason,
		},
	)
}

// extractScheme reports the lowercase scheme of s if it looks like a URL
// (contains "://" or a bare "scheme:" prefix recognized below).
func extractScheme(s string) (scheme string, ok bool) {
	idx := strings.Index(s, ":")
	if idx <= 0 {
		return "", false
	}
	candidate := strings.ToLower(s[:idx])
	if !isSchemeLike(candidate) {
		return "", false
	}
	return candidate, true
}

func isSchemeLike(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 && !(r >= 'a' && r <= 'z') {
			return false
		}
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '+' && r != '-' && r != '.' {
			return false
		}
	}
	return true
}

// suspiciousAddressReason classifies host as private/loopback/link-local/
// CGNAT network address or a known metadata-service hostname.
func suspiciousAddressReason(host string) string {
	h := strings.ToLower(host)
	if suspiciousHostnames[h] {
		return "known metadata/loopback hostname " + h
	}
	if strings.HasSuffix(h, ".localhost") || strings.HasSuffix(h, ".local") {
		return "local-network hostname " + h
	}

	ip := net.ParseIP(h)
	if ip == nil {
		return ""
	}
	if ip.IsLoopback() {
		return "loopback address " + h
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return "link-local address " + h
	}
	if ip.IsPrivate() {
		return "private network address " + h
	}
	if isCGNAT(ip) {
		return "carrier-grade NAT address " + h
	}
	return ""
}

var cgnatBlock = func() *net.IPNet {
	_, block, _ := net.ParseCIDR("100.64.0.0/10")
	return block
}()

func isCGNAT(ip net.IP) bool {
	return cgnatBlock.Contains(ip)
}
