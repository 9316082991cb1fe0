package validators

import "context"

// FakeSuite22Client is an in-memory Suite22Client for orchestrator tests.
type FakeSuite22Client struct {
	Result      Suite22Result
	Err         error
	LastBearer  string
	LastBitsLen int
	CallCount   int
}

func (f *FakeSuite22Client) RunTestSuite22(ctx context.Context, bearer string, bits []byte) (Suite22Result, error) {
	f.CallCount++
	f.LastBearer = bearer
	f.LastBitsLen = len(bits)
	if f.Err != nil {
		return Suite22Result{}, f.Err
	}
	return f.Result, nil
}

// FakeAssessor90BClient is an in-memory Assessor90BClient for
// orchestrator tests.
type FakeAssessor90BClient struct {
	Result     Assessment90BResult
	Err        error
	LastBearer string
	LastLen    int
	CallCount  int
}

func (f *FakeAssessor90BClient) AssessEntropy90B(ctx context.Context, bearer string, data []byte, bitsPerSymbol int, iid, nonIID bool, verbosity int) (Assessment90BResult, error) {
	f.CallCount++
	f.LastBearer = bearer
	f.LastLen = len(data)
	if f.Err != nil {
		return Assessment90BResult{}, f.Err
	}
	return f.Result, nil
}
