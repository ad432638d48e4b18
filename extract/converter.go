package extract

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
)

// Priority constants; lower is tried first (original PRIORITY_SPECIFIC /
// PRIORITY_GENERIC).
const (
	PrioritySpecific = 0.0
	PriorityGeneric  = 10.0
)

// Converter transforms a byte stream into a ConversionResult. Accepts
// must be cheap and side-effect free; Convert performs the real work.
type Converter interface {
	Name() string
	Accepts(data []byte, info StreamInfo) bool
	Convert(data []byte, info StreamInfo) ConversionResult
}

type registration struct {
	converter Converter
	priority  float64
}

// RegistryStats summarizes conversion outcomes (original get_stats).
type RegistryStats struct {
	TotalConversions      int
	SuccessfulConversions int
	FailedConversions     int
	ConverterUsage        map[string]int
}

// Registry holds converters with priority-based selection and fallback:
// on failure it tries the next-lowest-priority converter that accepts
// the content, in registration order for ties (original
// ConverterRegistry).
type Registry struct {
	mu           sync.Mutex
	converters   []registration
	stats        RegistryStats
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{stats: RegistryStats{ConverterUsage: make(map[string]int)}}
}

// Register adds converter at priority (default PrioritySpecific).
func (r *Registry) Register(converter Converter, priority float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.converters = append(r.converters, registration{converter: converter, priority: priority})
}

// Converters returns the registered converters in priority order.
func (r *Registry) Converters() []Converter {
	r.mu.Lock()
	defer r.mu.Unlock()
	sorted := r.sortedLocked()
	out := make([]Converter, len(sorted))
	for i, reg := range sorted {
		out[i] = reg.converter
	}
	return out
}

func (r *Registry) sortedLocked() []registration {
	sorted := make([]registration, len(r.converters))
	copy(sorted, r.converters)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].priority < sorted[j].priority })
	return sorted
}

// Convert dispatches data to the first converter (in priority order)
// that both accepts info and succeeds. A converter that accepts but
// fails is recorded and the next one is tried, per
// ConverterRegistry.convert's fallback behavior. File detection by
// magic bytes augments info with a higher-confidence guess first.
func (r *Registry) Convert(data []byte, info StreamInfo) ConversionResult {
	r.mu.Lock()
	sorted := r.sortedLocked()
	r.stats.TotalConversions++
	r.mu.Unlock()

	head := data
	if len(head) > 16 {
		head = head[:16]
	}
	guesses := DetectStreamInfo(head, info)
	detected := guesses[0]

	var failed []string
	for _, reg := range sorted {
		c := reg.converter
		if !c.Accepts(data, detected) {
			continue
		}
		result := c.Convert(bytes.Clone(data), detected)
		if result.Success {
			r.mu.Lock()
			r.stats.SuccessfulConversions++
			r.stats.ConverterUsage[c.Name()]++
			r.mu.Unlock()
			return result
		}
		failed = append(failed, fmt.Sprintf("%s: %s", c.Name(), result.Error))
	}

	r.mu.Lock()
	r.stats.FailedConversions++
	r.mu.Unlock()

	errMsg := "no converter could handle this content"
	if len(failed) > 0 {
		errMsg += fmt.Sprintf(". failed attempts: %v", failed)
	}
	title := detected.Filename
	if title == "" {
		title = detected.URL
	}
	if title == "" {
		title = "unknown"
	}
	return ConversionResult{Title: title, Success: false, Error: errMsg}
}

// Stats returns a snapshot of conversion statistics.
func (r *Registry) Stats() RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	usage := make(map[string]int, len(r.stats.ConverterUsage))
	for k, v := range r.stats.ConverterUsage {
		usage[k] = v
	}
	return RegistryStats{
		TotalConversions:      r.stats.TotalConversions,
		SuccessfulConversions: r.stats.SuccessfulConversions,
		FailedConversions:     r.stats.FailedConversions,
		ConverterUsage:        usage,
	}
}
