// Package modules holds the module registry.
//
// A module is a static descriptor for one kind of VM: the template image it
// is cloned from, the role it plays, how the configuration tool connects to
// it, and the task files applied in each task set. The registry is built once
// per run from a built-in table and an optional catalog directory of
// module.yaml files, then passed explicitly to the engine.
//
// Catalog layout mirrors module names: module "clients.rocky8" lives in
// <root>/clients/rocky8/ and keeps its task files next to module.yaml
// (bootstrap.yml, reboot.yml, deploy.yml, post.yml, dhcp-collect.yml) with
// auxiliary files under files/.
package modules
