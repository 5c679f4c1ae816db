package models

type GumroadSalesResponse struct {
	Success bool          `json:"success"`
	Sales   []GumroadSale `json:"sales"`
}

type GumroadSale struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	ProductID    string            `json:"product_id"`
	CustomFields map[string]string `json:"custom_fields"`
}
