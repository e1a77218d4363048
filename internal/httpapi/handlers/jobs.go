package handlers

import (
	"net/http"

	"vgate/internal/httpkit"
	"vgate/internal/jobs"
	"vgate/internal/pkg/errors"
)

const queuedMessage = "Job queued. Worker will handle processing."

type SubmitResponse struct {
	Status    string `json:"status"`
	JobID     string `json:"job_id"`
	VideoFile string `json:"video_file"`
	Message   string `json:"message"`
}

// PostJob accepts audio_url, image_url and date as form fields or a JSON
// object and answers once the queue has acknowledged the job.
func (h *Handler) PostJob(w http.ResponseWriter, r *http.Request) error {
	fields, err := httpkit.ReadFields(w, r, "audio_url", "image_url", "date")
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeBadRequest, "handlers.PostJob", "unreadable request body")
	}

	sub, err := h.jobs.Submit(r.Context(), jobs.JobRequest{
		AudioURL: fields["audio_url"],
		ImageURL: fields["image_url"],
		Date:     fields["date"],
	})
	if err != nil {
		return err
	}

	httpkit.WriteJSON(w, http.StatusOK, SubmitResponse{
		Status:    "queued",
		JobID:     sub.Record.JobID,
		VideoFile: sub.Record.FinalKey,
		Message:   queuedMessage,
	})
	return nil
}
