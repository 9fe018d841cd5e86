package definition

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/imamik/dropship/internal/topology"
)

// Block heads.
const (
	DirectiveNetwork     = "NETWORK"
	DirectiveNetInstance = "NETINSTANCE"
)

var (
	rangePattern = regexp.MustCompile(`^[0-9]{1,3}(\.([0-9]{1,3}|[a-z][a-z0-9_]*)){3}/[0-9]{1,2}$`)
	octetPattern = regexp.MustCompile(`^([0-9]{1,3}|[a-z][a-z0-9_]*)$`)
)

// RoleLookup returns the role of a module. *modules.Registry satisfies it.
type RoleLookup interface {
	Role(module string) (topology.Role, error)
}

// Topology is the parsed content of a definition and an instance file.
type Topology struct {
	Definitions []*topology.NetworkDefinition
	Instances   []*topology.NetworkInstance
	Routers     []*topology.Host
}

// Lookup returns an instance by name. It satisfies topology.NetworkLookup.
func (t *Topology) Lookup(name string) (*topology.NetworkInstance, bool) {
	for _, inst := range t.Instances {
		if inst.Name == name {
			return inst, true
		}
	}
	return nil, false
}

// Definition returns a definition by name.
func (t *Topology) Definition(name string) (*topology.NetworkDefinition, bool) {
	for _, d := range t.Definitions {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// Load parses a definition file and an instance file.
func Load(defPath, instPath string, roles RoleLookup) (*Topology, error) {
	df, err := os.Open(defPath)
	if err != nil {
		return nil, fmt.Errorf("open definitions: %w", err)
	}
	defer func() { _ = df.Close() }()
	defs, err := ParseDefinitions(df, defPath, roles)
	if err != nil {
		return nil, err
	}

	inf, err := os.Open(instPath)
	if err != nil {
		return nil, fmt.Errorf("open instances: %w", err)
	}
	defer func() { _ = inf.Close() }()
	return ParseInstances(inf, instPath, defs, roles)
}

type line struct {
	no     int
	tokens []string
}

func (l line) directive() string { return l.tokens[0] }

type parser struct {
	file string
}

func (p *parser) errorf(l line, format string, args ...any) error {
	directive := ""
	if len(l.tokens) > 0 {
		directive = l.directive()
	}
	return &Error{File: p.file, Line: l.no, Directive: directive, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) arity(l line, want int) error {
	if len(l.tokens) != want {
		return p.errorf(l, "expected %d arguments, got %d", want-1, len(l.tokens)-1)
	}
	return nil
}

func (p *parser) readLines(r io.Reader) ([]line, error) {
	var lines []line
	scanner := bufio.NewScanner(r)
	no := 0
	for scanner.Scan() {
		no++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		tokens, err := Tokenize(text)
		if err != nil {
			return nil, &Error{File: p.file, Line: no, Msg: err.Error()}
		}
		if len(tokens) > 0 {
			lines = append(lines, line{no: no, tokens: tokens})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", p.file, err)
	}
	return lines, nil
}

// blocks splits lines into blocks starting with head.
func (p *parser) blocks(lines []line, head string) ([][]line, error) {
	var out [][]line
	for _, l := range lines {
		if l.directive() == head {
			out = append(out, []line{l})
			continue
		}
		if len(out) == 0 {
			return nil, p.errorf(l, "first directive must be %s", head)
		}
		out[len(out)-1] = append(out[len(out)-1], l)
	}
	return out, nil
}

// ParseDefinitions parses NETWORK blocks. Module roles are taken from roles.
func ParseDefinitions(r io.Reader, file string, roles RoleLookup) ([]*topology.NetworkDefinition, error) {
	p := &parser{file: file}
	lines, err := p.readLines(r)
	if err != nil {
		return nil, err
	}
	blocks, err := p.blocks(lines, DirectiveNetwork)
	if err != nil {
		return nil, err
	}

	var defs []*topology.NetworkDefinition
	for _, b := range blocks {
		def, err := p.definition(b, roles)
		if err != nil {
			return nil, err
		}
		for _, d := range defs {
			if d.Name == def.Name {
				return nil, p.errorf(b[0], "duplicate network %s", def.Name)
			}
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (p *parser) definition(block []line, roles RoleLookup) (*topology.NetworkDefinition, error) {
	head := block[0]
	if err := p.arity(head, 2); err != nil {
		return nil, err
	}
	def := &topology.NetworkDefinition{Name: head.tokens[1], Vars: map[string]string{}}

	var firstDHCP *line
	for _, l := range block[1:] {
		t := l.tokens
		switch l.directive() {
		case "RANGE":
			if err := p.arity(l, 2); err != nil {
				return nil, err
			}
			if !rangePattern.MatchString(t[1]) {
				return nil, p.errorf(l, "invalid range %q", t[1])
			}
			def.Range = t[1]
		case "DOMAIN":
			if err := p.arity(l, 4); err != nil {
				return nil, err
			}
			def.Domain = &topology.Domain{FQDN: t[1], Admin: t[2], Password: t[3]}
		case "VAR":
			if err := p.arity(l, 3); err != nil {
				return nil, err
			}
			def.Vars[t[1]] = t[2]
		case "HOST":
			if err := p.arity(l, 4); err != nil {
				return nil, err
			}
			role, err := roles.Role(t[2])
			if err != nil {
				return nil, p.errorf(l, "unknown module %s", t[2])
			}
			if role == topology.RoleRouter || role == topology.RolePost {
				return nil, p.errorf(l, "module %s has role %s and cannot be a host", t[2], role)
			}
			if !validAddress(t[3]) {
				return nil, p.errorf(l, "invalid address %q", t[3])
			}
			if strings.EqualFold(t[3], "dhcp") && firstDHCP == nil {
				first := l
				firstDHCP = &first
			}
			if err := def.AddHost(topology.HostSpec{Hostname: t[1], Module: t[2], Role: role, Address: t[3]}); err != nil {
				return nil, p.errorf(l, "duplicate hostname %s", t[1])
			}
		case "USER":
			if err := p.arity(l, 5); err != nil {
				return nil, err
			}
			def.Users = append(def.Users, topology.User{Username: t[1], Password: t[2], First: t[3], Last: t[4]})
		case "POSTMOD":
			if len(t) < 3 {
				return nil, p.errorf(l, "expected host and module")
			}
			vars, err := p.assignments(l, t[3:])
			if err != nil {
				return nil, err
			}
			def.PostTargets = append(def.PostTargets, topology.PostTarget{Hostname: t[1], Module: t[2], Vars: vars})
		default:
			return nil, p.errorf(l, "unknown directive in network %s", def.Name)
		}
	}

	if def.Range == "" {
		return nil, p.errorf(head, "network %s has no RANGE", def.Name)
	}
	if firstDHCP != nil && !def.HasRole(topology.RoleDHCP) {
		return nil, p.errorf(*firstDHCP, "dhcp address in network %s without a dhcp role module", def.Name)
	}
	return def, nil
}

func (p *parser) assignments(l line, tokens []string) (map[string]string, error) {
	vars := make(map[string]string, len(tokens))
	for _, tok := range tokens {
		k, v, ok := strings.Cut(tok, "=")
		if !ok || k == "" {
			return nil, p.errorf(l, "expected name=value, got %q", tok)
		}
		vars[k] = v
	}
	return vars, nil
}

// validAddress accepts dhcp, a non-negative offset, or an IPv4 address whose
// octets may be variable names.
func validAddress(s string) bool {
	if strings.EqualFold(s, "dhcp") {
		return true
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n >= 0
	}
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if !octetPattern.MatchString(part) {
			return false
		}
		if n, err := strconv.Atoi(part); err == nil && n > 255 {
			return false
		}
	}
	return true
}

type routerDecl struct {
	line     line
	instance *topology.NetworkInstance
}

// ParseInstances parses NETINSTANCE blocks against defs. Routers are
// resolved once every instance is known, so they may reference instances
// declared later in the file.
func ParseInstances(r io.Reader, file string, defs []*topology.NetworkDefinition, roles RoleLookup) (*Topology, error) {
	p := &parser{file: file}
	lines, err := p.readLines(r)
	if err != nil {
		return nil, err
	}
	blocks, err := p.blocks(lines, DirectiveNetInstance)
	if err != nil {
		return nil, err
	}

	topo := &Topology{Definitions: defs}
	octets := map[string]map[string]string{}
	var routers []routerDecl

	for _, b := range blocks {
		inst, instOctets, decls, err := p.instance(b, topo)
		if err != nil {
			return nil, err
		}
		topo.Instances = append(topo.Instances, inst)
		octets[inst.Name] = instOctets
		routers = append(routers, decls...)
	}

	for _, decl := range routers {
		router, err := p.router(decl.line, topo, octets, roles)
		if err != nil {
			return nil, err
		}
		for _, existing := range topo.Routers {
			if existing.Hostname == router.Hostname {
				return nil, p.errorf(decl.line, "duplicate router %s", router.Hostname)
			}
		}
		if err := decl.instance.AddRouter(router); err != nil {
			return nil, p.errorf(decl.line, "%v", err)
		}
		topo.Routers = append(topo.Routers, router)
	}
	return topo, nil
}

func (p *parser) instance(block []line, topo *Topology) (*topology.NetworkInstance, map[string]string, []routerDecl, error) {
	head := block[0]
	if err := p.arity(head, 2); err != nil {
		return nil, nil, nil, err
	}
	name := head.tokens[1]
	if name == topology.External {
		return nil, nil, nil, p.errorf(head, "%s is a reserved name", name)
	}
	if _, dup := topo.Lookup(name); dup {
		return nil, nil, nil, p.errorf(head, "duplicate instance %s", name)
	}

	spec := topology.InstanceSpec{Name: name, Octets: map[string]string{}}
	var (
		defName string
		routers []line
	)
	for _, l := range block[1:] {
		t := l.tokens
		switch l.directive() {
		case "INSTOF":
			if err := p.arity(l, 2); err != nil {
				return nil, nil, nil, err
			}
			defName = t[1]
		case "SWITCH":
			if err := p.arity(l, 2); err != nil {
				return nil, nil, nil, err
			}
			spec.SwitchID = t[1]
		case "OCTET":
			if err := p.arity(l, 3); err != nil {
				return nil, nil, nil, err
			}
			n, err := strconv.Atoi(t[2])
			if err != nil || n < 0 || n > 255 {
				return nil, nil, nil, p.errorf(l, "invalid octet value %q", t[2])
			}
			spec.Octets[t[1]] = t[2]
		case "PREFIX":
			if err := p.arity(l, 2); err != nil {
				return nil, nil, nil, err
			}
			spec.Prefix = t[1]
		case "ROUTER":
			if len(t) < 4 {
				return nil, nil, nil, p.errorf(l, "expected name, module and at least one net=value")
			}
			routers = append(routers, l)
		default:
			return nil, nil, nil, p.errorf(l, "unknown directive in instance %s", name)
		}
	}

	if defName == "" {
		return nil, nil, nil, p.errorf(head, "instance %s has no INSTOF", name)
	}
	def, ok := topo.Definition(defName)
	if !ok {
		return nil, nil, nil, p.errorf(head, "instance %s: unknown definition %s", name, defName)
	}
	if spec.SwitchID == "" {
		return nil, nil, nil, p.errorf(head, "instance %s has no SWITCH", name)
	}

	inst, err := topology.NewInstance(def, spec)
	if err != nil {
		if errors.Is(err, topology.ErrUnresolvedOctet) {
			return nil, nil, nil, p.errorf(head, "instance %s: unsubstituted octet variable: %v", name, err)
		}
		return nil, nil, nil, p.errorf(head, "instance %s: %v", name, err)
	}

	decls := make([]routerDecl, 0, len(routers))
	for _, l := range routers {
		decls = append(decls, routerDecl{line: l, instance: inst})
	}
	return inst, spec.Octets, decls, nil
}

func (p *parser) router(l line, topo *Topology, octets map[string]map[string]string, roles RoleLookup) (*topology.Host, error) {
	t := l.tokens
	role, err := roles.Role(t[2])
	if err != nil {
		return nil, p.errorf(l, "unknown module %s", t[2])
	}
	if role != topology.RoleRouter {
		return nil, p.errorf(l, "module %s has role %s, not %s", t[2], role, topology.RoleRouter)
	}

	router := topology.NewRouter(t[1], t[2])
	for _, tok := range t[3:] {
		net, value, ok := strings.Cut(tok, "=")
		if !ok || net == "" || value == "" {
			return nil, p.errorf(l, "expected net=value, got %q", tok)
		}

		if net != topology.External {
			if _, known := topo.Lookup(net); !known {
				return nil, p.errorf(l, "unknown network %s", net)
			}
			value, err = topology.SubstituteOctets(value, octets[net])
			if err != nil {
				return nil, p.errorf(l, "unsubstituted octet variable in %q: %v", tok, err)
			}
		}

		iface, err := topology.ParseAddress(net, value)
		if err != nil {
			return nil, p.errorf(l, "%q: %v", tok, err)
		}
		if net == topology.External && iface.HasOffset() {
			return nil, p.errorf(l, "%s interfaces take a literal address or dhcp", topology.External)
		}
		router.AddInterface(iface)
	}
	return router, nil
}
