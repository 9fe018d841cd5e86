// Package ansible implements the configuration push capability with
// ansible-playbook.
//
// Every push renders two files into the request's work directory: a YAML
// inventory with one group per module, and a playbook with one play per
// group that imports the group's staged task files. The playbook is then run
// and its exit code returned unchanged.
package ansible
