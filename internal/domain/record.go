package domain

// PassThreshold is the reward a call must exceed at least once to be filed
// under the pass@k partition.
const PassThreshold = 0.75

// Audit partition names, used as file name suffixes.
const (
	PartitionPass      = "pass@k"
	PartitionNotPass   = "not_pass@k"
	PartitionCorrect   = "correct"
	PartitionIncorrect = "incorrect"
)

// RewardRecord is one audit log line.
type RewardRecord struct {
	CurrentIteration int     `json:"current_iteration"`
	Prompt           string  `json:"prompt"`
	ImageFile        *string `json:"image_file"`
	Answer           string  `json:"answer"`
	GTAnswer         string  `json:"gt_answer"`
	Reward           float64 `json:"reward"`
	AnswerLength     int     `json:"answer_token_length"`
	RewardSum        float64 `json:"reward_sum_of_this_prompt"`
	UUID             string  `json:"uuid"`
}

// PassPartition names the threshold partition for a whole call: pass@k when
// any reward exceeds PassThreshold.
func PassPartition(rewards []float64) string {
	for _, r := range rewards {
		if r > PassThreshold {
			return PartitionPass
		}
	}
	return PartitionNotPass
}

// SignPartition names the per-record partition: correct when reward > 0.
func SignPartition(reward float64) string {
	if reward > 0 {
		return PartitionCorrect
	}
	return PartitionIncorrect
}

// BuildRecords assembles audit records for a scored call. Empty image
// references are written as null.
func BuildRecords(reqs []Request, rewards []float64, iteration int) []RewardRecord {
	var sum float64
	for _, r := range rewards {
		sum += r
	}

	out := make([]RewardRecord, len(reqs))
	for i, req := range reqs {
		var image *string
		if req.ImageFile != "" {
			img := req.ImageFile
			image = &img
		}
		out[i] = RewardRecord{
			CurrentIteration: iteration,
			Prompt:           req.Prompt,
			ImageFile:        image,
			Answer:           req.Answer,
			GTAnswer:         req.Reference,
			Reward:           rewards[i],
			AnswerLength:     req.AnswerLength,
			RewardSum:        sum,
			UUID:             req.ID,
		}
	}
	return out
}
