package kommo

type CreateLeadInput struct {
	Name      string
	Phone     string
	Email     string
	ClassName string
}

type embeddedContacts struct {
	Embedded struct {
		Contacts []struct {
			ID int `json:"id"`
		} `json:"contacts"`
	} `json:"_embedded"`
}

type embeddedLeads struct {
	Embedded struct {
		Leads []struct {
			ID int `json:"id"`
		} `json:"leads"`
	} `json:"_embedded"`
}
