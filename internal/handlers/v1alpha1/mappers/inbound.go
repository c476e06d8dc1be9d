package mappers

import (
	"fmt"
	"io"
	"mime/multipart"

	"github.com/kubev2v/transcriber/internal/service"
	"github.com/kubev2v/transcriber/internal/util"
)

// UploadForm is the multipart body of a job creation request.
type UploadForm struct {
	Filename          string `json:"filename" validate:"audio_filename"`
	LanguageDetection bool   `json:"language_detection"`
	SpeakerLabels     bool   `json:"speaker_labels"`
}

func UploadFormFromMultipart(header *multipart.FileHeader, languageDetection, speakerLabels string) (UploadForm, error) {
	ld, err := util.ParseFormBool(languageDetection)
	if err != nil {
		return UploadForm{}, fmt.Errorf("invalid language_detection value %q", languageDetection)
	}
	sl, err := util.ParseFormBool(speakerLabels)
	if err != nil {
		return UploadForm{}, fmt.Errorf("invalid speaker_labels value %q", speakerLabels)
	}
	return UploadForm{
		Filename:          header.Filename,
		LanguageDetection: ld,
		SpeakerLabels:     sl,
	}, nil
}

func (f UploadForm) ToCreateRequest(header *multipart.FileHeader, body io.Reader) service.CreateRequest {
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return service.CreateRequest{
		Filename:          f.Filename,
		ContentType:       contentType,
		Size:              header.Size,
		Body:              body,
		LanguageDetection: f.LanguageDetection,
		SpeakerLabels:     f.SpeakerLabels,
	}
}
