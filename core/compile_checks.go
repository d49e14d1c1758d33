package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Resolver       = (*DirectResolver)(nil)
	_ Resolver       = (*DeferredInstallResolver)(nil)
	_ SessionCreator = (*Client)(nil)
	_ forwardEnv     = (*Client)(nil)

	_ Callback[Session]  = (*SessionForward)(nil)
	_ Callback[Session]  = (*AutoSessionForward)(nil)
	_ Callback[Session]  = (*AuthorizationForward)(nil)
	_ Callback[FileList] = (*ContentForward[FileList])(nil)
	_ Callback[Session]  = CallbackFuncs[Session]{}
	_ Observer           = BaseObserver{}
	_ Observer           = (*ActivityObserver)(nil)
	_ SessionListener    = PersistingSessionListener{}
	_ RawConfigLoader    = (*EnvRawConfigLoader)(nil)
	_ ConfigProvider     = (*CfgxConfigProvider)(nil)
	_ OptionsResolver    = GoOptionsResolver{}
	_ Executor           = InlineExecutor{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
