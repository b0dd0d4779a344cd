package extract

import "context"

type mockFetcher struct {
	data        []byte
	contentType string
	err         error
	keys        []string
}

func (m *mockFetcher) Fetch(_ context.Context, key string) ([]byte, string, error) {
	m.keys = append(m.keys, key)
	return m.data, m.contentType, m.err
}
