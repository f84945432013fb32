package delivery

// Result is the downstream's reply to a delivered message. Only Success and
// RecordCreated are interpreted; the full body is kept for operator endpoints.
type Result struct {
	Success       bool                   `json:"success"`
	RecordCreated bool                   `json:"despesa_registrada"`
	Body          map[string]interface{} `json:"-"`
}

func resultFromBody(body map[string]interface{}) *Result {
	r := &Result{Body: body}
	if v, ok := body["success"].(bool); ok {
		r.Success = v
	}
	if v, ok := body["despesa_registrada"].(bool); ok {
		r.RecordCreated = v
	}
	return r
}

const (
	selfTestSenderName = "Integration Test"
	selfTestBody       = "Integration test - R$ 50,00"
	selfTestSource     = "self_test_startup"

	manualTestSenderName = "Manual Test"
	manualTestBody       = "Manual integration test - R$ 100,00"
	manualTestSource     = "self_test_manual"
)
