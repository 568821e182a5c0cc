package async

import "encoding/json"

// createTestJob is a shared helper for tests to create jobs with a generic payload
func createTestJob(handlerName, source string) (*Job, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"source": source,
	})
	if err != nil {
		return nil, err
	}
	return NewJobWithPayload(handlerName, source, "test job for "+source, payload)
}
