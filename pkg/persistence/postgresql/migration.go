package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Document versions: content, fingerprint, workflow state and
			-- the parent/replaced-by chain linkage.
			CREATE TABLE document_versions (
				id UUID PRIMARY KEY,
				document_id UUID NOT NULL,
				version_number INT NOT NULL,
				version_string VARCHAR(20) NOT NULL,
				status VARCHAR(32) NOT NULL CHECK (status IN (
					'DRAFT', 'UNDER_REVIEW', 'PENDING_APPROVAL', 'APPROVED',
					'PUBLISHED', 'REJECTED', 'ARCHIVED', 'OBSOLETE'
				)),

				content TEXT NOT NULL DEFAULT '',
				fingerprint CHAR(64) NOT NULL,

				parent_version_id UUID REFERENCES document_versions(id),
				replaced_by_version_id UUID REFERENCES document_versions(id),
				is_latest BOOLEAN NOT NULL DEFAULT true,

				change_type VARCHAR(10),
				change_reason TEXT,
				change_summary TEXT,

				created_by VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				saved_at TIMESTAMP WITH TIME ZONE,

				submitted_by VARCHAR(255),
				submitted_at TIMESTAMP WITH TIME ZONE,
				reviewed_by VARCHAR(255),
				reviewed_at TIMESTAMP WITH TIME ZONE,
				approved_by VARCHAR(255),
				approved_at TIMESTAMP WITH TIME ZONE,
				published_by VARCHAR(255),
				published_at TIMESTAMP WITH TIME ZONE,
				rejected_by VARCHAR(255),
				rejected_at TIMESTAMP WITH TIME ZONE,
				archived_by VARCHAR(255),
				archived_at TIMESTAMP WITH TIME ZONE,
				obsolete_at TIMESTAMP WITH TIME ZONE,

				rejection_reason TEXT,
				review_comments TEXT,
				e_signature JSONB,

				UNIQUE (document_id, version_number)
			);

			CREATE INDEX idx_document_versions_document_id ON document_versions(document_id);
			CREATE INDEX idx_document_versions_status ON document_versions(status);
			-- One is_latest per document, enforced at the schema level.
			CREATE UNIQUE INDEX idx_document_versions_latest
				ON document_versions(document_id) WHERE is_latest;

			-- Edit locks: at most one row per version. Expiry is evaluated
			-- at read time; rows outliving their expiry carry no authority.
			CREATE TABLE edit_locks (
				id UUID PRIMARY KEY,
				version_id UUID NOT NULL REFERENCES document_versions(id) ON DELETE CASCADE,
				user_id VARCHAR(255) NOT NULL,
				token VARCHAR(64) NOT NULL UNIQUE,
				session_id VARCHAR(100),
				acquired_at TIMESTAMP WITH TIME ZONE NOT NULL,
				expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
				last_heartbeat TIMESTAMP WITH TIME ZONE NOT NULL,
				CONSTRAINT uq_edit_locks_version_id UNIQUE (version_id)
			);

			CREATE INDEX idx_edit_locks_expires_at ON edit_locks(expires_at);

			-- Reviewer comments; unresolved rows gate transitions.
			CREATE TABLE document_comments (
				id UUID PRIMARY KEY,
				version_id UUID NOT NULL REFERENCES document_versions(id) ON DELETE CASCADE,
				user_id VARCHAR(255) NOT NULL,
				comment_text TEXT NOT NULL,
				selected_text TEXT,
				selection_start INT,
				selection_end INT,
				resolved BOOLEAN NOT NULL DEFAULT false,
				resolved_by VARCHAR(255),
				resolved_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_document_comments_version_id ON document_comments(version_id);
			CREATE INDEX idx_document_comments_unresolved
				ON document_comments(version_id) WHERE NOT resolved;

			-- Content view tracking for the viewed-before-acting guard.
			CREATE TABLE document_views (
				id UUID PRIMARY KEY,
				version_id UUID NOT NULL REFERENCES document_versions(id) ON DELETE CASCADE,
				user_id VARCHAR(255) NOT NULL,
				viewed_at TIMESTAMP WITH TIME ZONE NOT NULL,
				CONSTRAINT uq_document_views_version_user UNIQUE (version_id, user_id)
			);

			-- Append-only compliance audit trail.
			CREATE TABLE audit_log (
				id UUID PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				username VARCHAR(255),
				action VARCHAR(64) NOT NULL,
				entity_type VARCHAR(64) NOT NULL,
				entity_id VARCHAR(255) NOT NULL,
				description TEXT,
				details JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_audit_log_entity ON audit_log(entity_type, entity_id);
			CREATE INDEX idx_audit_log_created_at ON audit_log(created_at);
		`,
	}
}
