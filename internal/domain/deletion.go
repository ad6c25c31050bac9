package domain

// DeletionPlan describes how an entity deletion was carried out
type DeletionPlan struct {
	EntityID     string   `json:"entity_id"`
	ClientID     string   `json:"client_id,omitempty"`
	OperationIDs []string `json:"operation_ids"`
	// Immediate is set when nothing had to be removed from storage first
	Immediate bool `json:"immediate"`
}
