package types

// PlaceholderAudio is sent in VoiceResponse.ResponseAudioBase64 for action
// responses, whose audio lives in the per-field voice clips instead.
const PlaceholderAudio = "-"

// VoiceResponse is the JSON body returned by POST /api/voice.
type VoiceResponse struct {
	// QuestionText echoes the transcript or typed message.
	QuestionText string `json:"question_text"`

	// ResponseText is the spoken answer, or the JSON action payload for
	// action responses.
	ResponseText string `json:"response_text"`

	// ResponseAudioBase64 is the stitched answer clip, or [PlaceholderAudio].
	ResponseAudioBase64 string `json:"response_audio_base64"`

	AnswerActionVoice string `json:"answer_action_voice,omitempty"`
	DescriptionVoice  string `json:"description_voice,omitempty"`

	// Action is "open_link" or "close_link" for action responses.
	Action string `json:"action,omitempty"`
	URL    string `json:"url,omitempty"`
}

// IsAction reports whether r carries an action instead of a plain answer.
func (r *VoiceResponse) IsAction() bool {
	return r != nil && r.Action != ""
}

// ErrorResponse is the JSON body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
