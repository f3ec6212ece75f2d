package v8host

// AppConfig holds process-level configuration for an App: where its
// asset root lives on disk and where the VM's once-only startup data
// (ICU + snapshot blob) can be found.
type AppConfig struct {
	AppRootPath  string // directory containing js/, modules/, resources/
	ICUDataPath  string // path to the ICU data file
	SnapshotPath string // path to the VM snapshot blob
}

// RuntimeConfig configures one Runtime created by App.CreateJSRuntime.
type RuntimeConfig struct {
	Name             string
	IdleTasksEnabled bool
	ForSnapshot      bool
	HeapLimitMB      int // 0 means no explicit heap limit
}
