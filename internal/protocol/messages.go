// Package protocol defines the JSON messages exchanged between agents, over
// REST and over the mailbox transport. Field names are part of the wire
// contract and must stay stable.
package protocol

// Message is implemented by every payload that can travel in a mailbox envelope.
type Message interface {
	MessageType() string
}

// Reply is implemented by responses that carry an application level outcome.
type Reply interface {
	Message
	Succeeded() bool
	Failure() string
}

const (
	TypeAudioTranscriptionRequest  = "AudioTranscriptionRequest"
	TypeAudioTranscriptionResponse = "AudioTranscriptionResponse"
	TypeBlobTranscriptionRequest   = "BlobTranscriptionRequest"
	TypeBlobTranscriptionResponse  = "BlobTranscriptionResponse"
	TypeBlobDownloadRequest        = "BlobDownloadRequest"
	TypeBlobDownloadResponse       = "BlobDownloadResponse"
	TypeFunctionCallRequest        = "FunctionCallRequest"
	TypeFunctionCallResponse       = "FunctionCallResponse"
	TypeChatMessage                = "ChatMessage"
	TypeChatReply                  = "ChatReply"
)

// AudioTranscriptionRequest asks the transcriber agent to transcribe audio bytes.
type AudioTranscriptionRequest struct {
	AudioDataBase64 string `json:"audio_data_base64"`
	MimeType        string `json:"mime_type"`
	SourceBlobID    string `json:"source_blob_id"`
	Description     string `json:"description,omitempty"`
}

func (AudioTranscriptionRequest) MessageType() string { return TypeAudioTranscriptionRequest }

// AudioTranscriptionResponse carries the transcript or the failure reason.
type AudioTranscriptionResponse struct {
	Transcript   string `json:"transcript"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
	SourceBlobID string `json:"source_blob_id"`
}

func (AudioTranscriptionResponse) MessageType() string { return TypeAudioTranscriptionResponse }
func (r AudioTranscriptionResponse) Succeeded() bool   { return r.Success }
func (r AudioTranscriptionResponse) Failure() string   { return r.ErrorMessage }

// BlobTranscriptionRequest asks the blob agent to download a blob and have it transcribed.
type BlobTranscriptionRequest struct {
	BlobID    string `json:"blob_id"`
	RequestID string `json:"request_id"`
}

func (BlobTranscriptionRequest) MessageType() string { return TypeBlobTranscriptionRequest }

// BlobTranscriptionResponse answers a BlobTranscriptionRequest.
type BlobTranscriptionResponse struct {
	Transcript   string `json:"transcript"`
	BlobID       string `json:"blob_id"`
	RequestID    string `json:"request_id"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func (BlobTranscriptionResponse) MessageType() string { return TypeBlobTranscriptionResponse }
func (r BlobTranscriptionResponse) Succeeded() bool   { return r.Success }
func (r BlobTranscriptionResponse) Failure() string   { return r.ErrorMessage }

// BlobDownloadRequest asks the blob agent for the raw bytes of a blob.
type BlobDownloadRequest struct {
	BlobID    string `json:"blob_id"`
	RequestID string `json:"request_id"`
}

func (BlobDownloadRequest) MessageType() string { return TypeBlobDownloadRequest }

// BlobDownloadResponse carries the blob bytes encoded as base64.
type BlobDownloadResponse struct {
	BlobDataBase64 string `json:"blob_data_base64"`
	MimeType       string `json:"mime_type"`
	BlobID         string `json:"blob_id"`
	RequestID      string `json:"request_id"`
	Success        bool   `json:"success"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

func (BlobDownloadResponse) MessageType() string { return TypeBlobDownloadResponse }
func (r BlobDownloadResponse) Succeeded() bool   { return r.Success }
func (r BlobDownloadResponse) Failure() string   { return r.ErrorMessage }

// BlobUploadRequest uploads raw bytes.
type BlobUploadRequest struct {
	DataBase64  string `json:"data_base64"`
	MimeType    string `json:"mime_type"`
	Description string `json:"description,omitempty"`
}

// BlobUploadFromURLRequest uploads the content found at a URL.
type BlobUploadFromURLRequest struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// TextUploadRequest uploads UTF-8 text.
type TextUploadRequest struct {
	Text        string `json:"text"`
	Description string `json:"description,omitempty"`
}

// UploadResponse is shared by the three upload endpoints.
type UploadResponse struct {
	BlobID       string `json:"blob_id"`
	BlobURL      string `json:"blob_url"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// FunctionCallRequest invokes a contract function or an askworld command.
type FunctionCallRequest struct {
	FunctionName string `json:"function_name"`
}

func (FunctionCallRequest) MessageType() string { return TypeFunctionCallRequest }

// FunctionCallResponse carries the formatted result of a FunctionCallRequest.
type FunctionCallResponse struct {
	FunctionName string `json:"function_name"`
	Result       string `json:"result"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func (FunctionCallResponse) MessageType() string { return TypeFunctionCallResponse }
func (r FunctionCallResponse) Succeeded() bool   { return r.Success }
func (r FunctionCallResponse) Failure() string   { return r.ErrorMessage }

// Attachment is a file carried by a chat message, either inline or by URL.
type Attachment struct {
	MimeType   string `json:"mime_type"`
	DataBase64 string `json:"data_base64,omitempty"`
	URL        string `json:"url,omitempty"`
}

// ChatMessage is the transport neutral form of an inbound chat message.
type ChatMessage struct {
	MsgID       string            `json:"msg_id"`
	Text        []string          `json:"text"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (ChatMessage) MessageType() string { return TypeChatMessage }

// ChatReply is the agent's answer to a ChatMessage.
type ChatReply struct {
	MsgID string `json:"msg_id"`
	Text  string `json:"text"`
}

func (ChatReply) MessageType() string { return TypeChatReply }
