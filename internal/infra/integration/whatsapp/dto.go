package whatsapp

type SendMessageInput struct {
	PhoneNumber  string   // E.164 without the plus, e.g. "639175550101"
	TemplateName string   // approved template, e.g. "staff_new_lead"
	Parameters   []string // body parameters in template order
}

type SendMessageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Contacts []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Error *ErrorResponse `json:"error"`
}

type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Type    string `json:"type"`
}
