package model

const (
	SupportCasesTable = "SupportCases"
	CaseMessagesTable = "CaseMessages"
)
