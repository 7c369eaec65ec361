package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/mail"
	"net/netip"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/publicsuffix"
)

const (
	maxTargetLen     = 253
	maxModuleNameLen = 64
	maxMetadataKeys  = 32
	maxScopeDepth    = 5
)

// TargetType identifies what kind of target a job investigates.
type TargetType string

const (
	TargetTypeDomain TargetType = "domain"
	TargetTypeEmail  TargetType = "email"
	TargetTypeIP     TargetType = "ip"
	TargetTypePerson TargetType = "person"
)

// Valid reports whether the target type is supported.
func (t TargetType) Valid() bool {
	switch t {
	case TargetTypeDomain, TargetTypeEmail, TargetTypeIP, TargetTypePerson:
		return true
	default:
		return false
	}
}

// RateProfile controls how aggressively modules pace their work.
type RateProfile string

const (
	RateProfileLow    RateProfile = "low"
	RateProfileMedium RateProfile = "medium"
	RateProfileHigh   RateProfile = "high"
)

// Valid reports whether the rate profile is supported.
func (p RateProfile) Valid() bool {
	switch p {
	case RateProfileLow, RateProfileMedium, RateProfileHigh:
		return true
	default:
		return false
	}
}

// DelayFactor scales simulated module pacing; faster profiles wait less.
func (p RateProfile) DelayFactor() float64 {
	switch p {
	case RateProfileHigh:
		return 0.25
	case RateProfileMedium:
		return 0.5
	default:
		return 1
	}
}

// ScopeType bounds what a job may touch around its target.
type ScopeType string

const (
	ScopeTypePublicWeb      ScopeType = "public-web"
	ScopeTypeSubdomainsOnly ScopeType = "subdomains-only"
	ScopeTypeIPRange        ScopeType = "ip-range"
)

// Scope narrows the reconnaissance surface for a job.
type Scope struct {
	Type              ScopeType `json:"type,omitempty"`
	IncludeSubdomains bool      `json:"include_subdomains,omitempty"`
	CIDRRange         string    `json:"cidr_range,omitempty"`
	MaxDepth          int       `json:"max_depth,omitempty"`
}

// ConsentType records how the operator attested authorization.
type ConsentType string

const (
	ConsentTypeTyped  ConsentType = "typed"
	ConsentTypeUpload ConsentType = "upload"
)

// Consent is the authorization attestation attached to a submission.
type Consent struct {
	Type         ConsentType `json:"type"`
	Value        string      `json:"value"`
	Timestamp    time.Time   `json:"timestamp"`
	IPAddress    string      `json:"ip_address,omitempty"`
	UserAgent    string      `json:"user_agent,omitempty"`
	UploadedFile string      `json:"uploaded_file,omitempty"`
}

// JobRequest is the immutable input of a submission.
type JobRequest struct {
	Target              string            `json:"target"`
	TargetType          TargetType        `json:"target_type"`
	Modules             []string          `json:"modules"`
	Scope               *Scope            `json:"scope,omitempty"`
	Consent             *Consent          `json:"consent,omitempty"`
	RateProfile         RateProfile       `json:"rate_profile,omitempty"`
	EnableActiveModules bool              `json:"enable_active_modules,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// FieldError describes a rejected request field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

func fieldErr(field, format string, args ...any) error {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// DecodeJobRequest strictly decodes a JSON request document, rejecting unknown fields.
func DecodeJobRequest(r io.Reader) (JobRequest, error) {
	var req JobRequest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return JobRequest{}, fieldErr("request", "decode: %v", err)
	}
	if dec.More() {
		return JobRequest{}, fieldErr("request", "unexpected trailing data")
	}
	return req, nil
}

// Normalize trims inputs and applies defaults in place.
func (r *JobRequest) Normalize() {
	r.Target = strings.TrimSpace(r.Target)
	r.TargetType = TargetType(strings.ToLower(strings.TrimSpace(string(r.TargetType))))
	for i, m := range r.Modules {
		r.Modules[i] = strings.TrimSpace(m)
	}
	r.RateProfile = RateProfile(strings.ToLower(strings.TrimSpace(string(r.RateProfile))))
	if r.RateProfile == "" {
		r.RateProfile = RateProfileLow
	}
	if r.TargetType == TargetTypeDomain {
		r.Target = strings.TrimSuffix(strings.ToLower(r.Target), ".")
	}
}

// Validate checks the request fields. It expects Normalize to have run.
func (r *JobRequest) Validate() error {
	if r.Target == "" {
		return fieldErr("target", "is required")
	}
	if utf8.RuneCountInString(r.Target) > maxTargetLen {
		return fieldErr("target", "cannot exceed %d characters", maxTargetLen)
	}
	if !r.TargetType.Valid() {
		return fieldErr("target_type", "must be one of domain, email, ip, person")
	}
	if err := validateTarget(r.TargetType, r.Target); err != nil {
		return err
	}
	if err := validateModules(r.Modules); err != nil {
		return err
	}
	if r.RateProfile != "" && !r.RateProfile.Valid() {
		return fieldErr("rate_profile", "must be one of low, medium, high")
	}
	if err := r.validateScope(); err != nil {
		return err
	}
	if err := r.validateConsent(); err != nil {
		return err
	}
	if len(r.Metadata) > maxMetadataKeys {
		return fieldErr("metadata", "cannot exceed %d entries", maxMetadataKeys)
	}
	return nil
}

func validateTarget(tt TargetType, target string) error {
	switch tt {
	case TargetTypeDomain:
		if strings.ContainsAny(target, " /:@") {
			return fieldErr("target", "is not a valid domain")
		}
		if _, err := publicsuffix.EffectiveTLDPlusOne(target); err != nil {
			return fieldErr("target", "is not a registrable domain")
		}
	case TargetTypeIP:
		if _, err := netip.ParseAddr(target); err != nil {
			return fieldErr("target", "is not a valid IP address")
		}
	case TargetTypeEmail:
		addr, err := mail.ParseAddress(target)
		if err != nil || addr.Address != target {
			return fieldErr("target", "is not a valid email address")
		}
	case TargetTypePerson:
	}
	return nil
}

func validateModules(modules []string) error {
	if len(modules) == 0 {
		return fieldErr("modules", "at least one module is required")
	}
	seen := make(map[string]struct{}, len(modules))
	for _, m := range modules {
		if m == "" {
			return fieldErr("modules", "cannot contain empty names")
		}
		if len(m) > maxModuleNameLen {
			return fieldErr("modules", "name %q exceeds %d characters", m, maxModuleNameLen)
		}
		if _, dup := seen[m]; dup {
			return fieldErr("modules", "duplicate module %q", m)
		}
		seen[m] = struct{}{}
	}
	return nil
}

func (r *JobRequest) validateScope() error {
	if r.Scope == nil {
		return nil
	}
	switch r.Scope.Type {
	case "", ScopeTypePublicWeb, ScopeTypeSubdomainsOnly:
	case ScopeTypeIPRange:
		if _, err := netip.ParsePrefix(r.Scope.CIDRRange); err != nil {
			return fieldErr("scope.cidr_range", "must be a valid CIDR for ip-range scope")
		}
	default:
		return fieldErr("scope.type", "must be one of public-web, subdomains-only, ip-range")
	}
	if r.Scope.MaxDepth < 0 || r.Scope.MaxDepth > maxScopeDepth {
		return fieldErr("scope.max_depth", "must be between 0 and %d", maxScopeDepth)
	}
	return nil
}

func (r *JobRequest) validateConsent() error {
	if r.Consent == nil {
		return nil
	}
	if r.Consent.Type != ConsentTypeTyped && r.Consent.Type != ConsentTypeUpload {
		return fieldErr("consent.type", "must be typed or upload")
	}
	if strings.TrimSpace(r.Consent.Value) == "" {
		return fieldErr("consent.value", "is required")
	}
	return nil
}

// ConsentHash returns a stable digest of the consent attestation, or "" when absent.
func (r *JobRequest) ConsentHash() string {
	if r.Consent == nil {
		return ""
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(r.Consent); err != nil {
		return ""
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// Clone returns a deep copy of the request.
func (r JobRequest) Clone() JobRequest {
	out := r
	out.Modules = append([]string(nil), r.Modules...)
	if r.Scope != nil {
		s := *r.Scope
		out.Scope = &s
	}
	if r.Consent != nil {
		c := *r.Consent
		out.Consent = &c
	}
	if r.Metadata != nil {
		out.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
