// Package config models the review pipeline's configuration surface as a
// plain struct loadable from TOML, with a handful of environment-variable
// overrides for values operators commonly need to flip without
// redeploying a config file. It exists only to construct the core types -
// the core components themselves know nothing about files or
// environment variables.
package config
