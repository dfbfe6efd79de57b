package credentials

var DummyHash = dummyHash
