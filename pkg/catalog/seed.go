package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the declarative catalog definition applied at deploy time
type Seed struct {
	Categories []SeedCategory `yaml:"categories"`
	Templates  []SeedTemplate `yaml:"templates"`
}

// SeedCategory defines a category and its permissions
type SeedCategory struct {
	Name        string           `yaml:"name"`
	DisplayName string           `yaml:"display_name"`
	Permissions []SeedPermission `yaml:"permissions"`
}

// SeedPermission defines a single permission within a category
type SeedPermission struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
	Critical    bool   `yaml:"critical"`
}

// SeedTemplate defines a role template and its grants
type SeedTemplate struct {
	Name        string   `yaml:"name"`
	DisplayName string   `yaml:"display_name"`
	Description string   `yaml:"description"`
	Mandatory   bool     `yaml:"mandatory"`
	Permissions []string `yaml:"permissions"`
}

// LoadSeedFile reads a catalog seed from a YAML file
func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	if err := seed.Validate(); err != nil {
		return nil, err
	}

	return &seed, nil
}

// Validate checks internal consistency: unique names and template grants
// that reference defined permissions.
func (s *Seed) Validate() error {
	perms := make(map[string]bool)
	for _, cat := range s.Categories {
		if cat.Name == "" {
			return fmt.Errorf("category with empty name")
		}
		for _, p := range cat.Permissions {
			if p.Name == "" {
				return fmt.Errorf("permission with empty name in category %s", cat.Name)
			}
			if perms[p.Name] {
				return fmt.Errorf("duplicate permission name: %s", p.Name)
			}
			perms[p.Name] = true
		}
	}

	templates := make(map[string]bool)
	for _, tpl := range s.Templates {
		if templates[tpl.Name] {
			return fmt.Errorf("duplicate template name: %s", tpl.Name)
		}
		templates[tpl.Name] = true
		for _, p := range tpl.Permissions {
			if !perms[p] {
				return fmt.Errorf("template %s references unknown permission: %s", tpl.Name, p)
			}
		}
	}

	return nil
}

// DefaultSeed returns the built-in catalog. A YAML file can override it,
// but the defaults match what the platform ships with.
func DefaultSeed() *Seed {
	return &Seed{
		Categories: []SeedCategory{
			{
				Name:        "platform",
				DisplayName: "Platform",
				Permissions: []SeedPermission{
					{Name: PermCreateGroup, DisplayName: "Create groups", Description: "Create new community groups"},
					{Name: PermBrowseCatalog, DisplayName: "Browse catalog", Description: "Browse the public group catalog"},
					{Name: PermEnrollSelf, DisplayName: "Enroll self", Description: "Join open groups without an invitation"},
					{Name: PermAdministerPlatform, DisplayName: "Administer platform", Description: "Access platform-wide administration", Critical: true},
				},
			},
			{
				Name:        "membership",
				DisplayName: "Membership",
				Permissions: []SeedPermission{
					{Name: PermInviteMembers, DisplayName: "Invite members", Description: "Invite users into the group"},
					{Name: PermRemoveMembers, DisplayName: "Remove members", Description: "Remove members from the group"},
					{Name: PermViewMemberList, DisplayName: "View member list", Description: "See the full group roster"},
				},
			},
			{
				Name:        "roles",
				DisplayName: "Roles",
				Permissions: []SeedPermission{
					{Name: PermManageRoles, DisplayName: "Manage roles", Description: "Create, edit, and delete group roles", Critical: true},
					{Name: PermAssignRoles, DisplayName: "Assign roles", Description: "Assign and unassign group roles"},
				},
			},
			{
				Name:        "content",
				DisplayName: "Content",
				Permissions: []SeedPermission{
					{Name: PermModerateContent, DisplayName: "Moderate content", Description: "Hide or delete member content"},
					{Name: PermEditGroup, DisplayName: "Edit group", Description: "Edit group name and description"},
				},
			},
			{
				Name:        "curriculum",
				DisplayName: "Curriculum",
				Permissions: []SeedPermission{
					{Name: PermManageEnrollments, DisplayName: "Manage enrollments", Description: "Manage course enrollments for the group"},
				},
			},
		},
		Templates: []SeedTemplate{
			{
				Name:        TemplateSteward,
				DisplayName: "Steward",
				Description: "Full group leadership",
				Mandatory:   true,
				Permissions: []string{
					PermInviteMembers, PermRemoveMembers, PermViewMemberList,
					PermManageRoles, PermAssignRoles,
					PermModerateContent, PermEditGroup,
					PermManageEnrollments,
				},
			},
			{
				Name:        TemplateMember,
				DisplayName: "Member",
				Description: "Baseline membership",
				Mandatory:   true,
				Permissions: []string{PermViewMemberList},
			},
			{
				Name:        TemplateObserver,
				DisplayName: "Observer",
				Description: "Read-only participation",
				Permissions: []string{},
			},
		},
	}
}
