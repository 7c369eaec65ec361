package service

import (
	"encoding/json"
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	apperrors "github.com/Abhracodec/osint-recon/internal/errors"
)

// JMESPathEvaluator abstracts JMESPath operations for testability.
type JMESPathEvaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

type jmespathLibEvaluator struct{}

func (jmespathLibEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (jmespathLibEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// ResultProjector narrows a job result or record with a JMESPath expression,
// e.g. "findings[].findings[?severity=='High'].title".
type ResultProjector struct {
	eval JMESPathEvaluator
}

// NewResultProjector builds a projector; a nil evaluator uses go-jmespath.
func NewResultProjector(eval JMESPathEvaluator) *ResultProjector {
	if eval == nil {
		eval = jmespathLibEvaluator{}
	}
	return &ResultProjector{eval: eval}
}

// Project evaluates expr against v's JSON form. An empty expression returns
// the JSON form unchanged.
func (p *ResultProjector) Project(v any, expr string) (any, error) {
	expr = strings.TrimSpace(expr)
	if err := p.eval.Validate(expr); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeValidation, "invalid query %q", expr)
	}
	doc, err := toDocument(v)
	if err != nil {
		return nil, err
	}
	if expr == "" {
		return doc, nil
	}
	out, err := p.eval.Evaluate(expr, doc)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeValidation, "evaluate query %q", expr)
	}
	return out, nil
}

// toDocument converts v into the map/slice shape JMESPath walks.
func toDocument(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return doc, nil
}
