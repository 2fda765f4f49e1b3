package mail

type LeadNotificationData struct {
	Brand          string
	FullName       string
	Phone          string
	Email          string
	PreferredClass string
	ReceivedAt     string
}
