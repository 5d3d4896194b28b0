package domain

// DefaultDatasource is used when a batch does not name its datasource.
const DefaultDatasource = "default"

// DefaultAnswerLength is recorded when a request carries no answer length.
const DefaultAnswerLength = -1

// Request is one evaluation unit.
type Request struct {
	Prompt       string
	Answer       string
	Reference    string
	Datasource   string
	ID           string
	ImageFile    string
	AnswerLength int
}

// Batch holds parallel input lists for one orchestration call. Prompts,
// Answers and References are required; the remaining lists are optional and
// must either be nil or match the number of prompts.
type Batch struct {
	Prompts       []string `json:"prompts"`
	Answers       []string `json:"answers"`
	References    []string `json:"gt_answers"`
	Datasources   []string `json:"datasources,omitempty"`
	IDs           []string `json:"uuids,omitempty"`
	ImageFiles    []string `json:"image_files,omitempty"`
	AnswerLengths []int    `json:"answer_lengths,omitempty"`
}

// Len returns the number of requests in the batch.
func (b Batch) Len() int { return len(b.Prompts) }

// Datasource validates the batch shape and returns the single datasource all
// requests share. It fails with a *BatchError on misaligned lists and with
// ErrMixedDatasources when more than one datasource is present.
func (b Batch) Datasource() (string, error) {
	n := len(b.Prompts)
	required := []struct {
		name string
		got  int
	}{
		{"answers", len(b.Answers)},
		{"gt_answers", len(b.References)},
	}
	for _, r := range required {
		if r.got != n {
			return "", &BatchError{Field: r.name, Want: n, Got: r.got}
		}
	}

	optional := []struct {
		name string
		set  bool
		got  int
	}{
		{"datasources", b.Datasources != nil, len(b.Datasources)},
		{"uuids", b.IDs != nil, len(b.IDs)},
		{"image_files", b.ImageFiles != nil, len(b.ImageFiles)},
		{"answer_lengths", b.AnswerLengths != nil, len(b.AnswerLengths)},
	}
	for _, o := range optional {
		if o.set && o.got != n {
			return "", &BatchError{Field: o.name, Want: n, Got: o.got}
		}
	}

	if len(b.Datasources) == 0 {
		return DefaultDatasource, nil
	}
	ds := b.Datasources[0]
	for _, d := range b.Datasources[1:] {
		if d != ds {
			return "", ErrMixedDatasources
		}
	}
	if ds == "" {
		return DefaultDatasource, nil
	}
	return ds, nil
}

// Requests validates the batch and expands it into per-item requests.
func (b Batch) Requests() ([]Request, error) {
	ds, err := b.Datasource()
	if err != nil {
		return nil, err
	}

	out := make([]Request, len(b.Prompts))
	for i := range b.Prompts {
		req := Request{
			Prompt:       b.Prompts[i],
			Answer:       b.Answers[i],
			Reference:    b.References[i],
			Datasource:   ds,
			AnswerLength: DefaultAnswerLength,
		}
		if b.IDs != nil {
			req.ID = b.IDs[i]
		}
		if b.ImageFiles != nil {
			req.ImageFile = b.ImageFiles[i]
		}
		if b.AnswerLengths != nil {
			req.AnswerLength = b.AnswerLengths[i]
		}
		out[i] = req
	}
	return out, nil
}
