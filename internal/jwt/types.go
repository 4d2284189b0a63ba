package jwt

type Role int

type Viewer struct {
	Id          string `json:"id"`
	Role        string `json:"role"`
	DisplayName string `json:"displayName"`
}
