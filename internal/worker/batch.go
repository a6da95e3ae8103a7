package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/veracast/internal/model"
)

// GraphBuilder builds or fetches the propagation graph for a claim
type GraphBuilder interface {
	BuildOrFetch(ctx context.Context, claim string, target int, expand bool) (*model.ClaimGraph, error)
}

// ClaimJob builds the graph for one claim
type ClaimJob struct {
	Index   int
	Claim   string
	Target  int
	Expand  int
	Builder GraphBuilder
}

// Execute builds the graph and applies the requested expansions
func (j *ClaimJob) Execute(ctx context.Context) Result {
	start := time.Now()
	res := &ClaimResult{Index: j.Index, Claim: j.Claim}

	g, err := j.Builder.BuildOrFetch(ctx, j.Claim, j.Target, false)
	for i := 0; err == nil && i < j.Expand; i++ {
		var expanded *model.ClaimGraph
		expanded, err = j.Builder.BuildOrFetch(ctx, j.Claim, j.Target, true)
		if expanded != nil {
			g = expanded
		}
	}

	res.Graph = g
	res.Error = err
	res.Duration = time.Since(start)
	return res
}

// ClaimResult is the outcome of one claim job
type ClaimResult struct {
	Index    int
	Claim    string
	Graph    *model.ClaimGraph
	Error    error
	Duration time.Duration
}

// GetError returns the error from the claim result
func (r *ClaimResult) GetError() error {
	return r.Error
}

// BatchProcessor builds graphs for many claims concurrently
type BatchProcessor struct {
	builder     GraphBuilder
	concurrency int
	target      int
	expand      int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(builder GraphBuilder, concurrency, target, expand int) *BatchProcessor {
	return &BatchProcessor{
		builder:     builder,
		concurrency: concurrency,
		target:      target,
		expand:      expand,
	}
}

// ProcessClaims builds all claims; results keep input order
func (b *BatchProcessor) ProcessClaims(ctx context.Context, claims []string) []*ClaimResult {
	if len(claims) == 0 {
		return []*ClaimResult{}
	}

	pool := NewPoolWithContext(ctx, b.concurrency)
	pool.Start()

	go func() {
		defer pool.Close()
		for i, claim := range claims {
			job := &ClaimJob{Index: i, Claim: claim, Target: b.target, Expand: b.expand, Builder: b.builder}
			if err := pool.Submit(job); err != nil {
				return
			}
		}
	}()

	ordered := make([]*ClaimResult, len(claims))
	for result := range pool.Results() {
		switch r := result.(type) {
		case *ClaimResult:
			ordered[r.Index] = r
		case *PanicResult:
			if job, ok := r.Job.(*ClaimJob); ok {
				ordered[job.Index] = &ClaimResult{Index: job.Index, Claim: job.Claim, Error: r.GetError()}
			}
		}
	}

	for i, r := range ordered {
		if r == nil {
			err := ctx.Err()
			if err == nil {
				err = ErrPoolClosed
			}
			ordered[i] = &ClaimResult{Index: i, Claim: claims[i], Error: err}
		}
	}
	return ordered
}

// ProcessFile reads claims from a file and processes them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*ClaimResult, error) {
	claims, err := ReadClaimsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read claims: %w", err)
	}

	return b.ProcessClaims(ctx, claims), nil
}

// ReadClaimsFromFile reads claims from a file, one per line. Blank lines and
// # comments are skipped and repeated claims are dropped.
func ReadClaimsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var claims []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.Join(strings.Fields(scanner.Text()), " ")

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			claims = append(claims, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return claims, nil
}
