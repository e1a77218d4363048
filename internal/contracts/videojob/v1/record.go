package v1

// Record v1: message body handed to the queue and consumed by the render worker.
// - job_id: 32 lowercase hex chars, unique per submission
// - audio_url / image_url / date: copied verbatim from the request
// - final_key: object key where the worker must write the finished video
type Record struct {
	JobID    string `json:"job_id"`
	AudioURL string `json:"audio_url"`
	ImageURL string `json:"image_url"`
	Date     string `json:"date"`
	FinalKey string `json:"final_key"`
}
